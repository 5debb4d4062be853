package cafcore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/multierr"
)

// CheckoutTarget names the commit a checkout is moving to: its tree, and
// either the branch it was resolved through (HEAD becomes a SymRef) or
// none (HEAD becomes a detached HashRef).
type CheckoutTarget struct {
	CommitHash Hash
	Tree       *Tree
	BranchName string // "" for a detached checkout
}

// flattenTree walks tree recursively into a flat path->blob-hash map.
// Directory entries never appear in the result; only file content does.
func flattenTree(store *ObjectStore, tree *Tree, prefix string, out map[string]Hash) error {
	if tree == nil {
		return nil
	}
	for name, rec := range tree.Records {
		path := name
		if prefix != "" {
			path = prefix + "/" + name
		}
		switch rec.Kind {
		case RecordBlob:
			out[path] = rec.Hash
		case RecordTree:
			sub, err := store.LoadTree(rec.Hash)
			if err != nil {
				return fmt.Errorf("%w: loading tree for %s: %v", ErrCheckoutError, path, err)
			}
			if err := flattenTree(store, sub, path, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// planCheckout diffs two flattened file maps into the set of blobs that
// must be (re)written and the set of paths that must be removed.
func planCheckout(oldFiles, newFiles map[string]Hash) (writes map[string]Hash, removes []string) {
	writes = make(map[string]Hash)
	for path, h := range newFiles {
		if old, ok := oldFiles[path]; !ok || old != h {
			writes[path] = h
		}
	}
	for path := range oldFiles {
		if _, ok := newFiles[path]; !ok {
			removes = append(removes, path)
		}
	}
	sort.Strings(removes)
	return writes, removes
}

// validateCheckout refuses to silently discard working-directory state: a
// path is a conflict when the file on disk exists and its content hash
// matches neither what the old tree recorded nor what the new tree wants.
// Every conflict found is collected via multierr rather than failing on
// the first one, so a caller can report the whole set at once.
func validateCheckout(store *ObjectStore, workDir string, oldFiles, newFiles map[string]Hash) error {
	var combined error

	check := func(path string, old, new Hash, hasNew bool) {
		full := filepath.Join(workDir, filepath.FromSlash(path))
		content, err := os.ReadFile(full) //nolint:gosec // path derives from a tree entry we control
		if err != nil {
			if os.IsNotExist(err) {
				return
			}
			combined = multierr.Append(combined, fmt.Errorf("%w: reading %s: %v", ErrCheckoutError, path, err))
			return
		}
		diskHash := store.HashBlob(content)
		if hasNew && diskHash == new {
			return
		}
		if diskHash == old {
			return
		}
		combined = multierr.Append(combined, fmt.Errorf("%w: %s has local modifications that checkout would overwrite", ErrConflictError, path))
	}

	for path, newHash := range newFiles {
		oldHash, existed := oldFiles[path]
		if existed && oldHash == newHash {
			continue // unchanged between old and new tree; outside the diff, nothing to validate
		}
		check(path, oldHash, newHash, true)
	}
	for path, oldHash := range oldFiles {
		if _, stillWanted := newFiles[path]; stillWanted {
			continue
		}
		check(path, oldHash, "", false)
	}
	return combined
}

// applyCheckout writes every blob in writes and removes every path in
// removes, pruning directories left empty by a removal.
func applyCheckout(store *ObjectStore, workDir string, writes map[string]Hash, removes []string) error {
	for path, h := range writes {
		full := filepath.Join(workDir, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrCheckoutError, err)
		}
		if err := writeBlobToFile(store, h, full); err != nil {
			return err
		}
	}
	for _, path := range removes {
		full := filepath.Join(workDir, filepath.FromSlash(path))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: removing %s: %v", ErrCheckoutError, path, err)
		}
		pruneEmptyDirs(workDir, filepath.Dir(full))
	}
	return nil
}

// writeBlobToFile streams a blob's content into dst via a temp-file-then-
// rename, so a crash mid-write never leaves a half-written file in place.
func writeBlobToFile(store *ObjectStore, h Hash, dst string) error {
	r, err := store.OpenBlobRead(h)
	if err != nil {
		return err
	}
	defer r.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".caf-checkout-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath) //nolint:errcheck
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close() //nolint:errcheck
		return fmt.Errorf("%w: writing %s: %v", ErrCheckoutError, dst, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}
	success = true
	return nil
}

// pruneEmptyDirs removes dir and its ancestors up to (but not including)
// root as long as each is empty. Failures are deliberately ignored: a
// non-empty or already-gone directory is not an error.
func pruneEmptyDirs(root, dir string) {
	for {
		if dir == root || len(dir) <= len(root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if os.Remove(dir) != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// CheckoutFromEmpty materializes target's tree into an empty working
// directory: every validation is skipped since there is no prior state to
// conflict with. It is used the moment a repository first gets an initial
// commit to check out.
func CheckoutFromEmpty(store *ObjectStore, refs *RefStore, index *StagingIndex, workDir, metaDirName string, target CheckoutTarget) error {
	newFiles := make(map[string]Hash)
	if err := flattenTree(store, target.Tree, "", newFiles); err != nil {
		return err
	}
	if err := applyCheckout(store, workDir, newFiles, nil); err != nil {
		return err
	}
	if err := index.ReplaceAll(newFiles); err != nil {
		return err
	}
	return updateHeadForCheckout(refs, target)
}

// Checkout moves the working directory and index from oldTree to
// target.Tree, validating first so uncommitted local changes are never
// silently discarded.
func Checkout(store *ObjectStore, refs *RefStore, index *StagingIndex, workDir, metaDirName string, oldTree *Tree, target CheckoutTarget) error {
	oldFiles := make(map[string]Hash)
	if err := flattenTree(store, oldTree, "", oldFiles); err != nil {
		return err
	}
	newFiles := make(map[string]Hash)
	if err := flattenTree(store, target.Tree, "", newFiles); err != nil {
		return err
	}

	if err := validateCheckout(store, workDir, oldFiles, newFiles); err != nil {
		return fmt.Errorf("%w: %w", ErrCheckoutError, err)
	}

	writes, removes := planCheckout(oldFiles, newFiles)
	if err := applyCheckout(store, workDir, writes, removes); err != nil {
		return err
	}
	if err := index.ReplaceAll(newFiles); err != nil {
		return err
	}
	return updateHeadForCheckout(refs, target)
}

func updateHeadForCheckout(refs *RefStore, target CheckoutTarget) error {
	if target.BranchName != "" {
		return refs.WriteRef(headPath, BranchRef(target.BranchName))
	}
	return refs.WriteRef(headPath, HashRef(target.CommitHash))
}
