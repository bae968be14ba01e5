package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/jab/internal/logging"
)

// DumpFile is the path, relative to the repository root, of the tracked dump.
const DumpFile = "dump.sql"

var (
	// ErrRepositoryInit indicates the repository could not be created or opened
	ErrRepositoryInit = errors.New("failed to initialize repository")

	// ErrRepositoryNotFound indicates no repository exists at or above a path
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrCommit indicates the engine failed to stage, write a tree, or write a commit
	ErrCommit = errors.New("failed to commit dump")

	// ErrCommitNotFound indicates a reference that does not resolve to a commit
	ErrCommitNotFound = errors.New("commit not found")

	// ErrAmbiguousRevision indicates a short hash matching more than one commit
	ErrAmbiguousRevision = errors.New("ambiguous commit reference")

	// ErrPathNotFoundInTree indicates a commit whose tree lacks DumpFile
	ErrPathNotFoundInTree = errors.New("dump file not found in commit tree")
)

// Commit is one recorded snapshot.
type Commit struct {
	Hash    string
	Message string
	Author  string
	Email   string
	When    time.Time

	// Parent is the hash of the first parent, empty for the root commit.
	Parent string
}

// IsRoot reports whether c has no parent.
func (c Commit) IsRoot() bool {
	return c.Parent == ""
}

// Short returns the first 7 characters of the hash.
func (c Commit) Short() string {
	if len(c.Hash) < 7 {
		return c.Hash
	}
	return c.Hash[:7]
}

// Repository is a git repository holding one dump file.
type Repository struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string

	authorName  string
	authorEmail string
	now         func() time.Time
	logger      *logging.Logger
}

// Option configures a Repository.
type Option func(*Repository)

// WithAuthor sets the commit identity. Without it the identity comes from
// git config (repository, then global) and Commit fails if none is set.
func WithAuthor(name, email string) Option {
	return func(r *Repository) {
		r.authorName = name
		r.authorEmail = email
	}
}

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// Initialize opens the repository at path, creating the directory tree and an
// empty repository first if none exists. Calling it on an existing
// repository leaves that repository unchanged.
func Initialize(path string, opts ...Option) (*Repository, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepositoryInit, path, err)
	}

	repo, err := git.PlainInit(path, false)
	if errors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.PlainOpen(path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepositoryInit, path, err)
	}

	r, err := newRepository(repo, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRepositoryInit, path, err)
	}
	return r, nil
}

// Open locates an existing repository at path or in one of its ancestors.
func Open(path string, opts ...Option) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, path)
		}
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}

	r, err := newRepository(repo, opts)
	if err != nil {
		return nil, fmt.Errorf("opening repository %s: %w", path, err)
	}
	return r, nil
}

func newRepository(repo *git.Repository, opts []Option) (*Repository, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}

	r := &Repository{
		repo:     repo,
		worktree: wt,
		root:     wt.Filesystem.Root(),
		now:      time.Now,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("snapshot").With(zap.String("repo", r.root))
	return r, nil
}

// Root returns the working tree directory.
func (r *Repository) Root() string {
	return r.root
}

// DumpPath returns the absolute path of the dump file.
func (r *Repository) DumpPath() string {
	return filepath.Join(r.root, DumpFile)
}

// WriteDump overwrites the dump file in the working tree. History is not
// touched until Commit.
func (r *Repository) WriteDump(ctx context.Context, data []byte) error {
	if err := util.WriteFile(r.worktree.Filesystem, DumpFile, data, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", DumpFile, err)
	}
	r.logger.Debug(ctx, "dump written", zap.Int("bytes", len(data)))
	return nil
}

// IsEmpty reports whether the repository has no commits yet.
func (r *Repository) IsEmpty() (bool, error) {
	head, err := r.headCommit()
	if err != nil {
		return false, err
	}
	return head == nil, nil
}

// Head returns the commit HEAD points at, or nil for an empty repository.
func (r *Repository) Head(ctx context.Context) (*Commit, error) {
	head, err := r.headCommit()
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, nil
	}
	c := toCommit(head)
	return &c, nil
}

// headCommit resolves HEAD. It returns nil, nil when there are no commits.
func (r *Repository) headCommit() (*object.Commit, error) {
	ref, err := r.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}

	commit, err := r.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("reading HEAD commit %s: %w", ref.Hash(), err)
	}
	return commit, nil
}

// signature returns the identity recorded as author and committer.
func (r *Repository) signature() (*object.Signature, error) {
	name, email := r.authorName, r.authorEmail

	if name == "" || email == "" {
		cfg, err := r.repo.ConfigScoped(config.GlobalScope)
		if err != nil {
			return nil, fmt.Errorf("reading git config: %w", err)
		}
		name, email = cfg.User.Name, cfg.User.Email
		if cfg.Author.Name != "" && cfg.Author.Email != "" {
			name, email = cfg.Author.Name, cfg.Author.Email
		}
	}

	if name == "" || email == "" {
		return nil, errors.New("missing author identity: set user.name and user.email in git config, or author.name and author.email in jab settings")
	}

	return &object.Signature{
		Name:  name,
		Email: email,
		When:  r.now(),
	}, nil
}

func toCommit(c *object.Commit) Commit {
	out := Commit{
		Hash:    c.Hash.String(),
		Message: c.Message,
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		When:    c.Author.When,
	}
	if len(c.ParentHashes) > 0 {
		out.Parent = c.ParentHashes[0].String()
	}
	return out
}
