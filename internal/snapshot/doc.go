// Package snapshot stores successive database dumps as commits in a git
// repository.
//
// Every repository tracks exactly one file, DumpFile. Writing a dump only
// touches the working tree; Commit stages it and records a new commit on the
// current line of history, unless the staged content is identical to what
// HEAD already holds, in which case nothing is recorded.
//
// Repository states:
//
//	Empty     initialized, no commits. Commit always records a root commit.
//	NonEmpty  at least one commit. Commit records a child of HEAD or is a no-op.
//
// History is linear: commits are only ever appended with HEAD as sole parent,
// and History walks first parents from HEAD back to the root.
//
// All go-git types stay inside this package. Callers see Commit values and
// hex hash strings only.
package snapshot
