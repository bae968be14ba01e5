// Package project binds named databases to snapshot repositories.
//
// Project Representation:
//
// Each project has:
//   - Name (also the directory name under the root)
//   - Database URI (handed to the dump/restore collaborator)
//   - Repository path: <root>/<name>, a snapshot repository whose working
//     tree holds a single dump.sql
//
// Projects are never persisted themselves. They are rebuilt on every run
// from the registry entry plus these conventions.
//
// Manager Interface:
//
// The Manager is the only component that touches both the registry and the
// filesystem:
//   - Bootstrap: ensure the root directory and registry file exist
//   - CreateProject: initialize the repository, then register the project
//   - OpenProject: bind a project without touching the registry
//   - OpenByName: look the project up in the registry, then open it
//   - ProjectNames: list registered names
package project
