package cafcore

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	indexFileName     = "index"
	indexLockFileName = "index.lock"
	lockRetryInterval = 10 * time.Millisecond
	lockTimeout       = 5 * time.Minute
)

// IndexEntry is one staged (path, blob hash) pair.
type IndexEntry struct {
	Path string
	Hash Hash
}

// Index is the logical path->hash mapping read from the on-disk staging
// index.
type Index struct {
	ByPath map[string]Hash
}

// StagingIndex manages the repository's index file: reads, lock-protected
// mutation, and conversion to a committed Tree.
type StagingIndex struct {
	metaDir string
	store   *ObjectStore
}

// NewStagingIndex returns a StagingIndex rooted at metaDir, writing blobs
// into store.
func NewStagingIndex(metaDir string, store *ObjectStore) *StagingIndex {
	return &StagingIndex{metaDir: metaDir, store: store}
}

func (s *StagingIndex) indexPath() string { return filepath.Join(s.metaDir, indexFileName) }
func (s *StagingIndex) lockPath() string  { return filepath.Join(s.metaDir, indexLockFileName) }

// ReadIndex parses the on-disk index. A missing file yields an empty
// mapping. Malformed lines are skipped, never fatal.
func (s *StagingIndex) ReadIndex() (*Index, error) {
	idx := &Index{ByPath: make(map[string]Hash)}

	f, err := os.Open(s.indexPath()) //nolint:gosec // fixed repo-relative path
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		sep := strings.LastIndex(line, " ")
		if sep == -1 {
			continue // malformed, skip with a warning in a real CLI surface
		}
		path, hashStr := line[:sep], line[sep+1:]
		h, err := NewHash(hashStr)
		if err != nil {
			continue
		}
		idx.ByPath[path] = h
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	return idx, nil
}

// NormalizePath resolves path (absolute or relative) against workDir,
// requires the result to lie within workDir, normalizes separators to '/',
// and rejects any component equal to metaDirName (case-insensitive).
func NormalizePath(workDir, path, metaDirName string) (string, error) {
	workDir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(workDir, path)
	}
	abs, err = filepath.Abs(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	rel, err := filepath.Rel(workDir, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: path %q escapes working directory", ErrInvalidArgument, path)
	}

	slashed := filepath.ToSlash(rel)
	for _, comp := range strings.Split(slashed, "/") {
		if strings.EqualFold(comp, metaDirName) {
			return "", fmt.Errorf("%w: path %q touches repository metadata directory", ErrInvalidArgument, path)
		}
	}
	return slashed, nil
}

// UpdateIndex inserts or replaces the entry for path under the index lock.
func (s *StagingIndex) UpdateIndex(path string, h Hash) error {
	return s.withLock(func() error {
		return s.mergeUpdate(path, &h)
	})
}

// RemoveFromIndex deletes the entry for path under the index lock.
// Removing a non-existent path is a no-op.
func (s *StagingIndex) RemoveFromIndex(path string) error {
	return s.withLock(func() error {
		return s.mergeUpdate(path, nil)
	})
}

// withLock is the index lock as a scoped resource: acquisition and release
// — including deletion of the lock file on any error — are guaranteed on
// every exit path.
func (s *StagingIndex) withLock(body func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	backoff := retry.NewConstant(lockRetryInterval)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // lock file, not a secret
		if err != nil {
			if os.IsExist(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		return f.Close()
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: acquiring index lock: %v", ErrTimeout, ctxErr)
		}
		return fmt.Errorf("%w: acquiring index lock: %v", ErrRepositoryError, err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(s.lockPath()) //nolint:errcheck
		}
	}()

	if err := body(); err != nil {
		return err
	}

	if err := os.Rename(s.lockPath(), s.indexPath()); err != nil {
		return fmt.Errorf("%w: committing index: %v", ErrRepositoryError, err)
	}
	success = true
	return nil
}

// mergeUpdate performs the streaming "zipper" merge-update: it reads the
// existing index line by line, writing unchanged lines with path < target,
// substituting (or dropping, for remove) the target's line at path ==
// target, and inserting the target (if not yet inserted) before copying
// the remainder once past target alphabetically. The new contents are
// written straight to the already-created index.lock file — the caller
// (withLock) commits it via atomic rename.
func (s *StagingIndex) mergeUpdate(target string, newHash *Hash) error {
	src, err := os.Open(s.indexPath()) //nolint:gosec // fixed repo-relative path
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}

	dst, err := os.OpenFile(s.lockPath(), os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec // lock file, not a secret
	if err != nil {
		if src != nil {
			src.Close() //nolint:errcheck
		}
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	defer dst.Close() //nolint:errcheck

	w := bufio.NewWriter(dst)
	inserted := false

	writeTarget := func() error {
		if newHash != nil {
			_, err := fmt.Fprintf(w, "%s %s\n", target, *newHash)
			return err
		}
		return nil // remove: write nothing
	}

	if src != nil {
		defer src.Close() //nolint:errcheck
		scanner := bufio.NewScanner(src)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			sep := strings.LastIndex(line, " ")
			if sep == -1 {
				continue
			}
			path := line[:sep]

			switch {
			case path < target:
				if _, err := fmt.Fprintln(w, line); err != nil {
					return fmt.Errorf("%w: %v", ErrRepositoryError, err)
				}
			case path == target:
				if !inserted {
					if err := writeTarget(); err != nil {
						return fmt.Errorf("%w: %v", ErrRepositoryError, err)
					}
					inserted = true
				}
			default: // path > target
				if !inserted {
					if err := writeTarget(); err != nil {
						return fmt.Errorf("%w: %v", ErrRepositoryError, err)
					}
					inserted = true
				}
				if _, err := fmt.Fprintln(w, line); err != nil {
					return fmt.Errorf("%w: %v", ErrRepositoryError, err)
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRepositoryError, err)
		}
	}

	if !inserted {
		if err := writeTarget(); err != nil {
			return fmt.Errorf("%w: %v", ErrRepositoryError, err)
		}
	}

	return w.Flush()
}

// ReplaceAll overwrites the whole index with entries, sorted by path. Used
// by checkout, which replaces the entire staged state in one step rather
// than applying path-by-path updates.
func (s *StagingIndex) ReplaceAll(entries map[string]Hash) error {
	return s.withLock(func() error {
		paths := make([]string, 0, len(entries))
		for p := range entries {
			paths = append(paths, p)
		}
		sort.Strings(paths)

		f, err := os.OpenFile(s.lockPath(), os.O_WRONLY|os.O_TRUNC, 0o644) //nolint:gosec // lock file, not a secret
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRepositoryError, err)
		}
		defer f.Close() //nolint:errcheck

		w := bufio.NewWriter(f)
		for _, p := range paths {
			if _, err := fmt.Fprintf(w, "%s %s\n", p, entries[p]); err != nil {
				return fmt.Errorf("%w: %v", ErrRepositoryError, err)
			}
		}
		return w.Flush()
	})
}

// BuildTreeFromIndex interprets the index's paths as a trie, hashes it
// bottom-up, and saves every resulting Tree to the Object Store. A path
// that collides with an existing prefix (file where a directory is
// required, or vice versa) fails with ErrIndexConflict.
func (s *StagingIndex) BuildTreeFromIndex(idx *Index) (Hash, error) {
	root := newTrieNode()
	paths := make([]string, 0, len(idx.ByPath))
	for p := range idx.ByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		if err := root.insert(strings.Split(p, "/"), idx.ByPath[p]); err != nil {
			return "", err
		}
	}
	return root.save(s.store)
}

type trieNode struct {
	isFile   bool
	fileHash Hash
	children map[string]*trieNode
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

func (n *trieNode) insert(components []string, h Hash) error {
	if len(components) == 1 {
		if existing, ok := n.children[components[0]]; ok && !existing.isFile {
			return fmt.Errorf("%w: %q is both a file and a directory", ErrIndexConflict, components[0])
		}
		n.children[components[0]] = &trieNode{isFile: true, fileHash: h}
		return nil
	}

	head, rest := components[0], components[1:]
	child, ok := n.children[head]
	if !ok {
		child = newTrieNode()
		n.children[head] = child
	} else if child.isFile {
		return fmt.Errorf("%w: %q is both a file and a directory", ErrIndexConflict, head)
	}
	return child.insert(rest, h)
}

func (n *trieNode) save(store *ObjectStore) (Hash, error) {
	tree := NewTree()
	for name, child := range n.children {
		if child.isFile {
			tree.Records[name] = TreeRecord{Kind: RecordBlob, Hash: child.fileHash, Name: name}
			continue
		}
		subHash, err := child.save(store)
		if err != nil {
			return "", err
		}
		tree.Records[name] = TreeRecord{Kind: RecordTree, Hash: subHash, Name: name}
	}
	return store.SaveTree(tree)
}
