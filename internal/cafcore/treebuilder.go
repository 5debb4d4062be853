package cafcore

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// TreeLookup maps a Tree's hash to the in-memory Tree it was built from,
// letting the Diff Engine descend into filesystem-built subtrees without
// requiring them to already exist in the Object Store.
type TreeLookup map[Hash]*Tree

// BuildTreeFromFS hashes dir into an in-memory Tree graph without writing
// anything to store. metaDirName (e.g. ".caf") is skipped at every level.
// Sibling files within one directory are hashed concurrently via errgroup,
// bounded by GOMAXPROCS; the walk across directory levels itself remains a
// single stack-based traversal.
func BuildTreeFromFS(store *ObjectStore, dir, metaDirName string) (*Tree, Hash, TreeLookup, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, "", nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	lookup := make(TreeLookup)
	tree, hash, err := buildTreeLevel(store, dir, metaDirName, lookup)
	if err != nil {
		return nil, "", nil, err
	}
	return tree, hash, lookup, nil
}

func buildTreeLevel(store *ObjectStore, dir, metaDirName string, lookup TreeLookup) (*Tree, Hash, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}

	type fileJob struct {
		idx  int
		name string
		path string
	}
	var files []fileJob
	var subdirs []fileJob

	for _, e := range entries {
		if e.Name() == metaDirName {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			subdirs = append(subdirs, fileJob{name: e.Name(), path: path})
		} else if e.Type().IsRegular() {
			files = append(files, fileJob{name: e.Name(), path: path})
		}
	}

	fileHashes := make([]Hash, len(files))
	if len(files) > 0 {
		g := new(errgroup.Group)
		g.SetLimit(max(1, runtime.GOMAXPROCS(0)))
		for i, job := range files {
			i, job := i, job
			g.Go(func() error {
				content, err := os.ReadFile(job.path) //nolint:gosec // path derives from a directory walk we control
				if err != nil {
					return fmt.Errorf("%w: reading %s: %v", ErrRepositoryError, job.path, err)
				}
				fileHashes[i] = store.HashBlob(content)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, "", err
		}
	}

	tree := NewTree()
	for i, job := range files {
		tree.Records[job.name] = TreeRecord{Kind: RecordBlob, Hash: fileHashes[i], Name: job.name}
	}
	for _, job := range subdirs {
		subTree, subHash, err := buildTreeLevel(store, job.path, metaDirName, lookup)
		if err != nil {
			return nil, "", err
		}
		tree.Records[job.name] = TreeRecord{Kind: RecordTree, Hash: subHash, Name: job.name}
		lookup[subHash] = subTree
	}

	hash := store.HashTree(tree)
	lookup[hash] = tree
	return tree, hash, nil
}
