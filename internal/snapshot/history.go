package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// minPrefixLen is the shortest hash prefix ContentAt will try to expand.
const minPrefixLen = 4

// History yields commits from HEAD back to the root, following first
// parents only. The walk is lazy; each call starts again from HEAD. An
// empty repository yields nothing. On error, one (Commit{}, err) pair is
// yielded and the walk stops.
func (r *Repository) History(ctx context.Context) iter.Seq2[Commit, error] {
	return func(yield func(Commit, error) bool) {
		c, err := r.headCommit()
		if err != nil {
			yield(Commit{}, err)
			return
		}

		for c != nil {
			if !yield(toCommit(c), nil) {
				return
			}
			if c.NumParents() == 0 {
				return
			}
			next, err := c.Parent(0)
			if err != nil {
				yield(Commit{}, fmt.Errorf("reading parent of %s: %w", c.Hash, err))
				return
			}
			c = next
		}
	}
}

// Log drains History into a slice, stopping after limit commits when limit
// is positive.
func (r *Repository) Log(ctx context.Context, limit int) ([]Commit, error) {
	var out []Commit
	for c, err := range r.History(ctx) {
		if err != nil {
			return out, err
		}
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ContentAt returns the dump file's bytes as recorded in the commit rev
// names. rev may be a full hash, an unambiguous hash prefix of at least four
// characters, or a reference such as HEAD or a branch name.
//
// Unresolvable references fail with ErrCommitNotFound, ambiguous prefixes
// with ErrAmbiguousRevision, and a commit without the dump file with
// ErrPathNotFoundInTree.
func (r *Repository) ContentAt(ctx context.Context, rev string) ([]byte, error) {
	commit, err := r.resolve(rev)
	if err != nil {
		return nil, err
	}

	file, err := commit.File(DumpFile)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s in %s", ErrPathNotFoundInTree, DumpFile, commit.Hash)
		}
		return nil, fmt.Errorf("reading tree of %s: %w", commit.Hash, err)
	}

	rd, err := file.Reader()
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", file.Hash, err)
	}
	defer rd.Close()

	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", file.Hash, err)
	}

	r.logger.Debug(ctx, "dump read", zap.String("hash", commit.Hash.String()), zap.Int("bytes", len(data)))
	return data, nil
}

// resolve maps rev to a commit object.
func (r *Repository) resolve(rev string) (*object.Commit, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrCommitNotFound)
	}

	if isHex(rev) {
		switch {
		case len(rev) == 40:
			return r.commitByHash(plumbing.NewHash(rev))
		case len(rev) > 40:
			return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, rev)
		case len(rev) >= minPrefixLen:
			c, err := r.commitByPrefix(strings.ToLower(rev))
			if err == nil || !errors.Is(err, ErrCommitNotFound) {
				return c, err
			}
			// Fall through: a short hex string may still be a branch name.
		}
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCommitNotFound, rev, err)
	}
	return r.commitByHash(*hash)
}

func (r *Repository) commitByHash(h plumbing.Hash) (*object.Commit, error) {
	c, err := r.repo.CommitObject(h)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, h)
		}
		return nil, fmt.Errorf("reading commit %s: %w", h, err)
	}
	return c, nil
}

func (r *Repository) commitByPrefix(prefix string) (*object.Commit, error) {
	commits, err := r.repo.CommitObjects()
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer commits.Close()

	var match *object.Commit
	ambiguous := false
	err = commits.ForEach(func(c *object.Commit) error {
		if !strings.HasPrefix(c.Hash.String(), prefix) {
			return nil
		}
		if match != nil && match.Hash != c.Hash {
			ambiguous = true
		}
		match = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}

	switch {
	case ambiguous:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousRevision, prefix)
	case match == nil:
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, prefix)
	}
	return match, nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return s != ""
}
