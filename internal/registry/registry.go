// Package registry manages the durable project name -> database URI mapping.
//
// The registry is a single JSON file at <root>/config:
//
//	{
//	  "projects": {
//	    "shop": { "name": "shop", "db_uri": "user:secret@localhost/shop" }
//	  }
//	}
//
// It is loaded fully into memory, mutated in memory, and rewritten as a
// whole. There is no locking across processes: two concurrent invocations
// that both register a project can lose one of the updates.
package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
)

// Errors for registry operations.
var (
	ErrConfigParse          = errors.New("registry file is malformed")
	ErrConfigIO             = errors.New("registry file I/O failed")
	ErrProjectNotRegistered = errors.New("project is not registered")
	ErrInvalidName          = errors.New("invalid name: must be alphanumeric with dots/hyphens/underscores")
	ErrPathTraversal        = errors.New("path traversal detected")
)

// namePattern validates project names.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// NotRegisteredError reports a lookup of a name absent from the registry.
type NotRegisteredError struct {
	Name string
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("project %q does not exist in the registry", e.Name)
}

// Unwrap lets callers match with errors.Is(err, ErrProjectNotRegistered).
func (e *NotRegisteredError) Unwrap() error {
	return ErrProjectNotRegistered
}

// ProjectConfig binds a project name to the database it snapshots.
type ProjectConfig struct {
	Name  string `json:"name"`
	DBURI string `json:"db_uri"`
}

// Registry is the persisted registry structure.
type Registry struct {
	Projects map[string]ProjectConfig `json:"projects"`
}

// Empty returns a registry with no projects. It serializes as
// {"projects": {}}.
func Empty() *Registry {
	return &Registry{Projects: make(map[string]ProjectConfig)}
}

// Register inserts cfg, replacing any existing entry with the same name.
func (r *Registry) Register(cfg ProjectConfig) {
	if r.Projects == nil {
		r.Projects = make(map[string]ProjectConfig)
	}
	r.Projects[cfg.Name] = cfg
}

// ProjectConfig returns the entry for name or a *NotRegisteredError.
func (r *Registry) ProjectConfig(name string) (ProjectConfig, error) {
	cfg, ok := r.Projects[name]
	if !ok {
		return ProjectConfig{}, &NotRegisteredError{Name: name}
	}
	return cfg, nil
}

// Names returns all registered project names. Order is not significant;
// the slice is sorted only so output is stable.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Projects))
	for name := range r.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone returns a deep copy so stores never share maps with callers.
func (r *Registry) clone() *Registry {
	c := Empty()
	for k, v := range r.Projects {
		c.Projects[k] = v
	}
	return c
}

// ValidateName checks if a name is safe to use as a directory name.
func ValidateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > 255 {
		return fmt.Errorf("%w: name too long (max 255)", ErrInvalidName)
	}

	if name == "." || name == ".." {
		return ErrPathTraversal
	}
	for _, c := range name {
		if c == '/' || c == '\\' || c == '\x00' {
			return ErrPathTraversal
		}
	}

	if !namePattern.MatchString(name) {
		return ErrInvalidName
	}

	if filepath.Clean(name) != name {
		return ErrPathTraversal
	}

	return nil
}
