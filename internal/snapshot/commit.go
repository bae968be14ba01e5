package snapshot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
)

// Commit stages the dump file and records it with message.
//
// On an empty repository a root commit is always created. Otherwise the
// staged tree is diffed against HEAD's tree: with no changes nothing is
// written and Commit returns nil, nil. With changes, a commit whose only
// parent is HEAD is written and HEAD's branch is advanced to it.
func (r *Repository) Commit(ctx context.Context, message string) (*Commit, error) {
	head, err := r.headCommit()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommit, err)
	}

	// Captured before staging so the diff sees the recorded state.
	var oldTree *object.Tree
	if head != nil {
		if oldTree, err = head.Tree(); err != nil {
			return nil, fmt.Errorf("%w: reading HEAD tree: %v", ErrCommit, err)
		}
	}

	if _, err := r.worktree.Add(DumpFile); err != nil {
		return nil, fmt.Errorf("%w: staging %s: %v", ErrCommit, DumpFile, err)
	}

	treeHash, err := r.writeIndexTree()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommit, err)
	}
	r.logger.Trace(ctx, "index tree written", zap.String("tree", treeHash.String()))

	var parents []plumbing.Hash
	if head != nil {
		newTree, err := object.GetTree(r.repo.Storer, treeHash)
		if err != nil {
			return nil, fmt.Errorf("%w: reading staged tree: %v", ErrCommit, err)
		}
		changes, err := object.DiffTree(oldTree, newTree)
		if err != nil {
			return nil, fmt.Errorf("%w: diffing trees: %v", ErrCommit, err)
		}
		if len(changes) == 0 {
			r.logger.Info(ctx, "nothing to commit", zap.String("head", head.Hash.String()))
			return nil, nil
		}
		parents = []plumbing.Hash{head.Hash}
	}

	sig, err := r.signature()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommit, err)
	}

	commit := &object.Commit{
		Author:       *sig,
		Committer:    *sig,
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	hash, err := r.storeObject(commit)
	if err != nil {
		return nil, fmt.Errorf("%w: writing commit: %v", ErrCommit, err)
	}
	commit.Hash = hash

	if err := r.advanceHead(hash); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommit, err)
	}

	out := toCommit(commit)
	r.logger.Info(ctx, "dump committed",
		zap.String("hash", out.Hash),
		zap.Bool("root", out.IsRoot()),
	)
	return &out, nil
}

// encodable is implemented by go-git objects that serialize themselves.
type encodable interface {
	Encode(plumbing.EncodedObject) error
}

func (r *Repository) storeObject(o encodable) (plumbing.Hash, error) {
	obj := r.repo.Storer.NewEncodedObject()
	if err := o.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	return r.repo.Storer.SetEncodedObject(obj)
}

// writeIndexTree writes a tree object for the current index and returns its
// hash. Only top-level entries are supported; the repository never tracks
// anything but DumpFile.
func (r *Repository) writeIndexTree() (plumbing.Hash, error) {
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("reading index: %w", err)
	}

	tree := &object.Tree{}
	for _, e := range idx.Entries {
		if strings.Contains(e.Name, "/") {
			return plumbing.ZeroHash, fmt.Errorf("unexpected nested index entry %q", e.Name)
		}
		tree.Entries = append(tree.Entries, object.TreeEntry{
			Name: e.Name,
			Mode: e.Mode,
			Hash: e.Hash,
		})
	}
	sort.Slice(tree.Entries, func(i, j int) bool {
		return tree.Entries[i].Name < tree.Entries[j].Name
	})

	hash, err := r.storeObject(tree)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("writing tree: %w", err)
	}
	return hash, nil
}

// advanceHead points the branch HEAD refers to (or HEAD itself when
// detached) at hash.
func (r *Repository) advanceHead(hash plumbing.Hash) error {
	head, err := r.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return fmt.Errorf("reading HEAD reference: %w", err)
	}

	name := plumbing.HEAD
	if head.Type() == plumbing.SymbolicReference {
		name = head.Target()
	}

	if err := r.repo.Storer.SetReference(plumbing.NewHashReference(name, hash)); err != nil {
		return fmt.Errorf("updating %s: %w", name, err)
	}
	return nil
}
