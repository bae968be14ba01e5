package project

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
	"github.com/fyrsmithlabs/jab/internal/registry"
	"github.com/fyrsmithlabs/jab/internal/snapshot"
)

// Common errors.
var (
	ErrProjectNotFound = errors.New("project repository not found")
	ErrEmptyDBURI      = errors.New("database URI cannot be empty")
	ErrNoCommits       = errors.New("project has no commits yet")
)

// Project is a named database bound to its snapshot repository.
type Project struct {
	name     string
	dbURI    string
	rootDir  string
	repoPath string

	repo     *snapshot.Repository
	repoOpts []snapshot.Option
}

func newProject(rootDir, name, dbURI string, opts []snapshot.Option) (*Project, error) {
	if err := registry.ValidateName(name); err != nil {
		return nil, fmt.Errorf("project name %q: %w", name, err)
	}
	if dbURI == "" {
		return nil, ErrEmptyDBURI
	}
	return &Project{
		name:     name,
		dbURI:    dbURI,
		rootDir:  rootDir,
		repoPath: filepath.Join(rootDir, name),
		repoOpts: opts,
	}, nil
}

// Create initializes (or reopens) the repository at <rootDir>/<name> and
// returns the bound project.
func Create(ctx context.Context, rootDir, name, dbURI string, opts ...snapshot.Option) (*Project, error) {
	p, err := newProject(rootDir, name, dbURI, opts)
	if err != nil {
		return nil, err
	}

	repo, err := snapshot.Initialize(p.repoPath, p.repoOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating project %s: %w", name, err)
	}
	p.repo = repo

	logging.FromContext(ctx).Debug(ctx, "project repository ready",
		zap.String("project", name),
		zap.String("path", p.repoPath),
	)
	return p, nil
}

// Open binds a project without touching the filesystem. The repository is
// opened on first use; operations fail with ErrProjectNotFound if it does
// not exist by then.
func Open(ctx context.Context, rootDir, name, dbURI string, opts ...snapshot.Option) (*Project, error) {
	return newProject(rootDir, name, dbURI, opts)
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

// DBURI returns the database URI.
func (p *Project) DBURI() string { return p.dbURI }

// RepoPath returns <root>/<name>.
func (p *Project) RepoPath() string { return p.repoPath }

// DumpPath returns the absolute path of the tracked dump file.
func (p *Project) DumpPath() string { return filepath.Join(p.repoPath, snapshot.DumpFile) }

// repository opens the backing repository on first use. It refuses a
// repository found in an ancestor directory: only <root>/<name> counts.
func (p *Project) repository() (*snapshot.Repository, error) {
	if p.repo != nil {
		return p.repo, nil
	}

	if _, err := os.Stat(p.repoPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, p.repoPath)
		}
		return nil, fmt.Errorf("checking %s: %w", p.repoPath, err)
	}

	repo, err := snapshot.Open(p.repoPath, p.repoOpts...)
	if err != nil {
		if errors.Is(err, snapshot.ErrRepositoryNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, p.repoPath)
		}
		return nil, err
	}
	if !samePath(repo.Root(), p.repoPath) {
		return nil, fmt.Errorf("%w: %s (only found %s)", ErrProjectNotFound, p.repoPath, repo.Root())
	}

	p.repo = repo
	return repo, nil
}

// SyncDump overwrites the working copy of the dump.
func (p *Project) SyncDump(ctx context.Context, dump []byte) error {
	repo, err := p.repository()
	if err != nil {
		return err
	}
	return repo.WriteDump(ctx, dump)
}

// CommitDump syncs dump and commits it. It returns nil, nil when dump is
// identical to the content at HEAD.
func (p *Project) CommitDump(ctx context.Context, message string, dump []byte) (*snapshot.Commit, error) {
	if err := p.SyncDump(ctx, dump); err != nil {
		return nil, err
	}
	repo, err := p.repository()
	if err != nil {
		return nil, err
	}
	return repo.Commit(ctx, message)
}

// History yields the project's commits, newest first.
func (p *Project) History(ctx context.Context) iter.Seq2[snapshot.Commit, error] {
	return func(yield func(snapshot.Commit, error) bool) {
		repo, err := p.repository()
		if err != nil {
			yield(snapshot.Commit{}, err)
			return
		}
		for c, err := range repo.History(ctx) {
			if !yield(c, err) {
				return
			}
		}
	}
}

// Head returns the latest commit, or nil if nothing was committed yet.
func (p *Project) Head(ctx context.Context) (*snapshot.Commit, error) {
	repo, err := p.repository()
	if err != nil {
		return nil, err
	}
	return repo.Head(ctx)
}

// DumpAt returns the dump recorded at the given commit reference.
func (p *Project) DumpAt(ctx context.Context, hash string) ([]byte, error) {
	repo, err := p.repository()
	if err != nil {
		return nil, err
	}
	return repo.ContentAt(ctx, hash)
}

// LatestDump returns the dump recorded at HEAD.
func (p *Project) LatestDump(ctx context.Context) ([]byte, error) {
	head, err := p.Head(ctx)
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCommits, p.name)
	}
	return p.repo.ContentAt(ctx, head.Hash)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
