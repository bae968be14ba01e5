package project

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/snapshot"
)

// Manager creates, opens and lists projects.
type Manager interface {
	// Bootstrap makes sure the root directory and registry exist.
	Bootstrap(ctx context.Context) error

	// CreateProject initializes <dir>/<name> and registers the project.
	// The repository is kept even if registering fails.
	CreateProject(ctx context.Context, dir, name, dbURI string) (*Project, error)

	// OpenProject binds a project without consulting the registry.
	OpenProject(ctx context.Context, dir, name, dbURI string) (*Project, error)

	// OpenByName looks name up in the registry and opens it under the root.
	OpenByName(ctx context.Context, name string) (*Project, error)

	// ProjectNames lists registered project names in sorted order.
	ProjectNames(ctx context.Context) ([]string, error)
}

// ManagerOption configures a manager.
type ManagerOption func(*manager)

// WithRepositoryOptions passes opts to every repository the manager opens.
func WithRepositoryOptions(opts ...snapshot.Option) ManagerOption {
	return func(m *manager) { m.repoOpts = append(m.repoOpts, opts...) }
}

// WithManagerLogger sets the logger used for manager events.
func WithManagerLogger(l *logging.Logger) ManagerOption {
	return func(m *manager) { m.logger = l }
}

// manager implements Manager on top of a registry.Store.
type manager struct {
	root     string
	store    registry.Store
	repoOpts []snapshot.Option
	logger   *logging.Logger

	mu  sync.Mutex
	reg *registry.Registry
}

// NewManager creates a manager rooted at root. The registry is read from
// store on first use and cached for the manager's lifetime.
func NewManager(root string, store registry.Store, opts ...ManagerOption) Manager {
	m := &manager{
		root:   root,
		store:  store,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("project")
	return m
}

func (m *manager) Bootstrap(ctx context.Context) error {
	if err := m.store.Bootstrap(); err != nil {
		return err
	}
	m.logger.Debug(ctx, "registry bootstrapped", zap.String("root", m.root))
	return nil
}

// registry returns the cached registry, loading it on first call.
// Callers must hold m.mu.
func (m *manager) registry() (*registry.Registry, error) {
	if m.reg != nil {
		return m.reg, nil
	}
	reg, err := m.store.Read()
	if err != nil {
		return nil, err
	}
	m.reg = reg
	return reg, nil
}

func (m *manager) CreateProject(ctx context.Context, dir, name, dbURI string) (*Project, error) {
	ctx = logging.WithProject(ctx, name)

	p, err := Create(ctx, dir, name, dbURI, m.repoOpts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.registry()
	if err != nil {
		return nil, err
	}

	if prev, err := reg.ProjectConfig(name); err == nil && prev.DBURI != dbURI {
		m.logger.Warn(ctx, "replacing registered database URI",
			logging.DBURI("previous_db_uri", prev.DBURI),
			logging.DBURI("db_uri", dbURI),
		)
	}

	reg.Register(registry.ProjectConfig{Name: name, DBURI: dbURI})
	if err := m.store.Persist(reg); err != nil {
		m.reg = nil
		return nil, fmt.Errorf("registering project %s: %w", name, err)
	}

	m.logger.Info(ctx, "project created",
		zap.String("path", p.RepoPath()),
		logging.DBURI("db_uri", dbURI),
	)
	return p, nil
}

func (m *manager) OpenProject(ctx context.Context, dir, name, dbURI string) (*Project, error) {
	return Open(ctx, dir, name, dbURI, m.repoOpts...)
}

func (m *manager) OpenByName(ctx context.Context, name string) (*Project, error) {
	if err := registry.ValidateName(name); err != nil {
		return nil, fmt.Errorf("project name %q: %w", name, err)
	}

	m.mu.Lock()
	reg, err := m.registry()
	var cfg registry.ProjectConfig
	if err == nil {
		cfg, err = reg.ProjectConfig(name)
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return m.OpenProject(ctx, m.root, cfg.Name, cfg.DBURI)
}

func (m *manager) ProjectNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, err := m.registry()
	if err != nil {
		return nil, err
	}
	return reg.Names(), nil
}
