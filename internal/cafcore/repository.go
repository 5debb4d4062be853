package cafcore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	defaultBranchName = "main"
	objectsDirName    = "objects"
)

// Repository binds the Object Store, Reference Store, and Staging Index
// together behind the operations a caller actually performs: committing,
// checking out, diffing, and merging. Mutating operations serialize on mu;
// the Staging Index's own lock file additionally protects against
// concurrent processes, not just concurrent goroutines within one.
type Repository struct {
	workDir string
	metaDir string

	store *ObjectStore
	refs  *RefStore
	index *StagingIndex

	logger *slog.Logger

	mu sync.RWMutex
}

// Init creates a new repository rooted at workDir, with metadata under
// metaDirName (e.g. ".caf"), and returns it open. It fails if metaDir
// already exists.
func Init(workDir, metaDirName string) (*Repository, error) {
	metaDir := filepath.Join(workDir, metaDirName)
	if _, err := os.Stat(metaDir); err == nil {
		return nil, fmt.Errorf("%w: %s already exists", ErrRepositoryError, metaDir)
	}

	for _, sub := range []string{objectsDirName, filepath.Join("refs", "heads"), filepath.Join("refs", "tags")} {
		if err := os.MkdirAll(filepath.Join(metaDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRepositoryError, err)
		}
	}

	repo := newRepository(workDir, metaDir)
	if err := repo.refs.WriteRef(headPath, BranchRef(defaultBranchName)); err != nil {
		return nil, err
	}
	if err := repo.refs.WriteRef(headsPrefix+defaultBranchName, Ref{Kind: RefKindAbsent}); err != nil {
		return nil, err
	}
	return repo, nil
}

// Open opens an existing repository rooted at workDir.
func Open(workDir, metaDirName string) (*Repository, error) {
	metaDir := filepath.Join(workDir, metaDirName)
	if _, err := os.Stat(metaDir); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRepositoryNotFound, metaDir)
	}
	return newRepository(workDir, metaDir), nil
}

func newRepository(workDir, metaDir string) *Repository {
	store := NewObjectStore(filepath.Join(metaDir, objectsDirName))
	return &Repository{
		workDir: workDir,
		metaDir: metaDir,
		store:   store,
		refs:    NewRefStore(metaDir),
		index:   NewStagingIndex(metaDir, store),
		logger:  slog.Default(),
	}
}

// WithLogger sets the structured logger used for diagnostic output and
// returns the repository for chaining.
func (r *Repository) WithLogger(logger *slog.Logger) *Repository {
	r.logger = logger
	return r
}

// WorkDir returns the repository's working directory.
func (r *Repository) WorkDir() string { return r.workDir }

// MetaDir returns the repository's metadata directory.
func (r *Repository) MetaDir() string { return r.metaDir }

// Store exposes the underlying Object Store for callers (e.g. the CLI)
// that need direct read access.
func (r *Repository) Store() *ObjectStore { return r.store }

// Refs exposes the underlying Reference Store.
func (r *Repository) Refs() *RefStore { return r.refs }

// Add stages path (file or directory, relative to the working directory)
// into the index, hashing and saving blob content as it goes.
func (r *Repository) Add(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	normalized, err := NormalizePath(r.workDir, path, filepath.Base(r.metaDir))
	if err != nil {
		return err
	}
	full := filepath.Join(r.workDir, filepath.FromSlash(normalized))

	info, err := os.Stat(full)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if !info.IsDir() {
		return r.addFile(normalized, full)
	}

	return filepath.Walk(full, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if fi.Name() == filepath.Base(r.metaDir) {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.workDir, p)
		if err != nil {
			return err
		}
		return r.addFile(filepath.ToSlash(rel), p)
	})
}

func (r *Repository) addFile(normalized, full string) error {
	f, err := os.Open(full) //nolint:gosec // path comes from a walk rooted at workDir
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	defer f.Close() //nolint:errcheck

	h, err := r.store.SaveBlobFromReader(f)
	if err != nil {
		return err
	}
	r.logger.Debug("staged file", "path", normalized, "hash", h)
	return r.index.UpdateIndex(normalized, h)
}

// CommitWorkingDir builds a tree from the current index and records it as
// a new commit on HEAD. If a merge is in progress (MERGE_HEAD present),
// the merge's other-side commit becomes the new commit's second parent,
// and any file still carrying conflict markers blocks the commit.
func (r *Repository) CommitWorkingDir(author, message string) (Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.index.ReadIndex()
	if err != nil {
		return "", err
	}
	if len(idx.ByPath) == 0 {
		return "", fmt.Errorf("%w: nothing staged to commit", ErrInvalidArgument)
	}

	for path, h := range idx.ByPath {
		content, err := r.store.GetBlob(h)
		if err != nil {
			return "", err
		}
		if hasConflictMarkers(content) {
			return "", fmt.Errorf("%w: %s still has unresolved conflict markers", ErrConflictError, path)
		}
	}

	treeHash, err := r.index.BuildTreeFromIndex(idx)
	if err != nil {
		return "", err
	}

	headOwn, err := r.refs.ReadRef(headPath)
	if err != nil {
		return "", err
	}
	headResolved, err := r.refs.Resolve(headPath)
	if err != nil {
		return "", err
	}

	var parents []Hash
	if headResolved.Kind == RefKindHash {
		parents = append(parents, headResolved.Hash)
	}

	mergeHead, err := ReadMergeHead(r.metaDir)
	if err != nil {
		return "", err
	}
	if mergeHead != "" {
		parents = append(parents, mergeHead)
	}

	commit := &Commit{
		Tree:      treeHash,
		Author:    author,
		Message:   message,
		Timestamp: time.Now().Unix(),
		Parents:   parents,
	}
	commitHash, err := r.store.SaveCommit(commit)
	if err != nil {
		return "", err
	}

	if headOwn.Kind == RefKindSym {
		if err := r.refs.WriteRef(headOwn.Sym, HashRef(commitHash)); err != nil {
			return "", err
		}
	} else {
		if err := r.refs.WriteRef(headPath, HashRef(commitHash)); err != nil {
			return "", err
		}
	}

	if mergeHead != "" {
		if err := ClearMergeHead(r.metaDir); err != nil {
			return "", err
		}
	}

	r.logger.Info("committed", "hash", commitHash, "tree", treeHash, "parents", len(parents))
	return commitHash, nil
}

// Checkout switches the working directory, index, and HEAD to name, which
// is resolved per ResolveName's disambiguation order.
func (r *Repository) Checkout(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, err := r.refs.ResolveName(name)
	if err != nil {
		return err
	}
	if target.Kind != RefKindHash {
		return fmt.Errorf("%w: %q has no commit to check out", ErrCheckoutError, name)
	}

	commit, err := r.store.LoadCommit(target.Hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}
	newTree, err := r.store.LoadTree(commit.Tree)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}

	branchName := ""
	if r.refs.BranchExists(name) {
		branchName = name
	}
	checkoutTarget := CheckoutTarget{CommitHash: target.Hash, Tree: newTree, BranchName: branchName}

	headResolved, err := r.refs.Resolve(headPath)
	if err != nil {
		return err
	}
	if headResolved.Kind != RefKindHash {
		return CheckoutFromEmpty(r.store, r.refs, r.index, r.workDir, filepath.Base(r.metaDir), checkoutTarget)
	}

	headCommit, err := r.store.LoadCommit(headResolved.Hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}
	oldTree, err := r.store.LoadTree(headCommit.Tree)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckoutError, err)
	}

	return Checkout(r.store, r.refs, r.index, r.workDir, filepath.Base(r.metaDir), oldTree, checkoutTarget)
}

// Diff computes the typed change forest between two resolvable names.
func (r *Repository) Diff(fromName, toName string) (*DiffForest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fromTree, err := r.treeForName(fromName)
	if err != nil {
		return nil, err
	}
	toTree, err := r.treeForName(toName)
	if err != nil {
		return nil, err
	}

	loader := TreeLoaderFor(r.store, nil)
	return DiffTrees(fromTree, toTree, loader, loader)
}

func (r *Repository) treeForName(name string) (*Tree, error) {
	ref, err := r.refs.ResolveName(name)
	if err != nil {
		return nil, err
	}
	if ref.Kind != RefKindHash {
		return nil, nil // absent ref diffs as an empty tree
	}
	commit, err := r.store.LoadCommit(ref.Hash)
	if err != nil {
		return nil, err
	}
	return r.store.LoadTree(commit.Tree)
}

// FileStatus is one path's combined staged/unstaged/untracked status.
type FileStatus struct {
	Path        string
	IndexStatus string // "added", "modified", "deleted", or ""
	WorkStatus  string // "modified", "deleted", or ""
	IsUntracked bool
}

// Status computes the working tree status by comparing HEAD's tree against
// the index, then the index against the working directory, then walking
// the working directory for untracked files.
func (r *Repository) Status() ([]FileStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statusLocked()
}

// statusLocked is Status's body without acquiring r.mu, for callers that
// already hold it (read or write) such as Merge's clean-working-tree check.
func (r *Repository) statusLocked() ([]FileStatus, error) {
	headFiles := make(map[string]Hash)
	headResolved, err := r.refs.Resolve(headPath)
	if err != nil {
		return nil, err
	}
	if headResolved.Kind == RefKindHash {
		commit, err := r.store.LoadCommit(headResolved.Hash)
		if err != nil {
			return nil, err
		}
		tree, err := r.store.LoadTree(commit.Tree)
		if err != nil {
			return nil, err
		}
		if err := flattenTree(r.store, tree, "", headFiles); err != nil {
			return nil, err
		}
	}

	idx, err := r.index.ReadIndex()
	if err != nil {
		return nil, err
	}

	results := make(map[string]*FileStatus)

	for path, h := range idx.ByPath {
		headHash, inHead := headFiles[path]
		switch {
		case !inHead:
			results[path] = &FileStatus{Path: path, IndexStatus: "added"}
		case headHash != h:
			results[path] = &FileStatus{Path: path, IndexStatus: "modified"}
		}
	}
	for path := range headFiles {
		if _, staged := idx.ByPath[path]; !staged {
			results[path] = &FileStatus{Path: path, IndexStatus: "deleted"}
		}
	}

	get := func(path string) *FileStatus {
		if fs, ok := results[path]; ok {
			return fs
		}
		fs := &FileStatus{Path: path}
		results[path] = fs
		return fs
	}

	for path, h := range idx.ByPath {
		full := filepath.Join(r.workDir, filepath.FromSlash(path))
		content, err := os.ReadFile(full) //nolint:gosec // path derives from the index, rooted at workDir
		if err != nil {
			if os.IsNotExist(err) {
				get(path).WorkStatus = "deleted"
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRepositoryError, err)
		}
		if r.store.HashBlob(content) != h {
			get(path).WorkStatus = "modified"
		}
	}

	metaDirName := filepath.Base(r.metaDir)
	walkErr := filepath.Walk(r.workDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped, not fatal
		}
		if fi.IsDir() {
			if fi.Name() == metaDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(r.workDir, p)
		if err != nil {
			return nil //nolint:nilerr
		}
		rel = filepath.ToSlash(rel)
		if _, tracked := idx.ByPath[rel]; tracked {
			return nil
		}
		results[rel] = &FileStatus{Path: rel, IsUntracked: true}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryError, walkErr)
	}

	out := make([]FileStatus, 0, len(results))
	for _, fs := range results {
		out = append(out, *fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Log returns up to limit commits (0 means unlimited) by walking the
// first-parent chain starting at name.
func (r *Repository) Log(name string, limit int) ([]*Commit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.refs.ResolveName(name)
	if err != nil {
		return nil, err
	}
	var commits []*Commit
	for cur := ref; cur.Kind == RefKindHash; {
		c, err := r.store.LoadCommit(cur.Hash)
		if err != nil {
			return nil, err
		}
		commits = append(commits, c)
		if limit > 0 && len(commits) >= limit {
			break
		}
		if len(c.Parents) == 0 {
			break
		}
		cur = HashRef(c.Parents[0])
	}
	return commits, nil
}

// AddBranch creates a branch named name pointing at HEAD's current commit.
func (r *Repository) AddBranch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.refs.Resolve(headPath)
	if err != nil {
		return err
	}
	if head.Kind != RefKindHash {
		return fmt.Errorf("%w: cannot branch from a repository with no commits", ErrInvalidArgument)
	}
	return r.refs.WriteRef(headsPrefix+name, HashRef(head.Hash))
}

// DeleteBranch removes a branch ref. Refuses to delete the last remaining
// branch, since that would leave the repository unable to resolve any
// branch at all.
func (r *Repository) DeleteBranch(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	branches, err := r.refs.Branches()
	if err != nil {
		return err
	}
	if len(branches) <= 1 && r.refs.BranchExists(name) {
		return fmt.Errorf("%w: cannot delete the last branch", ErrInvalidArgument)
	}
	return r.refs.DeleteRef(headsPrefix + name)
}

// BranchExists reports whether name is a branch.
func (r *Repository) BranchExists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs.BranchExists(name)
}

// Branches lists all branch names.
func (r *Repository) Branches() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs.Branches()
}

// CreateTag creates a lightweight tag named name pointing at HEAD's
// current commit.
func (r *Repository) CreateTag(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	head, err := r.refs.Resolve(headPath)
	if err != nil {
		return err
	}
	if head.Kind != RefKindHash {
		return fmt.Errorf("%w: cannot tag a repository with no commits", ErrInvalidArgument)
	}
	return r.refs.WriteRef(tagsPrefix+name, HashRef(head.Hash))
}

// DeleteTag removes a tag ref.
func (r *Repository) DeleteTag(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs.DeleteRef(tagsPrefix + name)
}

// TagExists reports whether name is a tag.
func (r *Repository) TagExists(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs.TagExists(name)
}

// Tags lists all tag names.
func (r *Repository) Tags() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refs.Tags()
}

// requireCleanAgainstHead fails if the working tree has any staged or
// unstaged difference from HEAD, per §4.7's merge pre-condition: "the
// working tree must be clean against HEAD; otherwise fail before touching
// anything." Untracked files are not part of HEAD's tree and so are not a
// diff against it; they do not block a merge. Caller must hold r.mu.
func (r *Repository) requireCleanAgainstHead() error {
	statuses, err := r.statusLocked()
	if err != nil {
		return err
	}
	var dirty []string
	for _, s := range statuses {
		if s.IndexStatus != "" || s.WorkStatus != "" {
			dirty = append(dirty, s.Path)
		}
	}
	if len(dirty) > 0 {
		return fmt.Errorf("%w: working tree is not clean against HEAD: %v", ErrMergeError, dirty)
	}
	return nil
}

// Merge merges otherName into the branch HEAD currently points to. On a
// clean merge it creates and checks out a new commit with two parents.
// On conflicts it leaves the working directory and index holding the
// partially merged (possibly marker-laden) state and returns
// Conflicted=true; the caller resolves conflicts and calls
// CommitWorkingDir to finish. Fails before touching anything if the
// working tree is not clean against HEAD.
func (r *Repository) Merge(author, otherName string) (*MergeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	headOwn, err := r.refs.ReadRef(headPath)
	if err != nil {
		return nil, err
	}
	if headOwn.Kind != RefKindSym {
		return nil, fmt.Errorf("%w: cannot merge with a detached HEAD", ErrMergeError)
	}
	oursRef, err := r.refs.Resolve(headPath)
	if err != nil {
		return nil, err
	}
	if oursRef.Kind != RefKindHash {
		return nil, fmt.Errorf("%w: cannot merge into a branch with no commits", ErrMergeError)
	}

	theirsRef, err := r.refs.ResolveName(otherName)
	if err != nil {
		return nil, err
	}
	if theirsRef.Kind != RefKindHash {
		return nil, fmt.Errorf("%w: %q has no commits to merge", ErrMergeError, otherName)
	}

	if err := r.requireCleanAgainstHead(); err != nil {
		return nil, err
	}

	oursCommit, err := r.store.LoadCommit(oursRef.Hash)
	if err != nil {
		return nil, err
	}
	theirsCommit, err := r.store.LoadCommit(theirsRef.Hash)
	if err != nil {
		return nil, err
	}

	outcome, err := Merge(r.store, r.index, r.workDir, r.metaDir, *oursCommit, *theirsCommit, oursRef.Hash, theirsRef.Hash, otherName)
	if err != nil {
		return nil, err
	}
	if outcome.Conflicted {
		r.logger.Warn("merge left conflicts", "paths", outcome.ConflictPaths)
		return outcome, nil
	}

	mergeCommit := &Commit{
		Tree:      outcome.TreeHash,
		Author:    author,
		Message:   fmt.Sprintf("Merge %s into %s", otherName, headOwn.BranchName()),
		Timestamp: time.Now().Unix(),
		Parents:   []Hash{oursRef.Hash, theirsRef.Hash},
	}
	commitHash, err := r.store.SaveCommit(mergeCommit)
	if err != nil {
		return nil, err
	}
	if err := r.refs.WriteRef(headOwn.Sym, HashRef(commitHash)); err != nil {
		return nil, err
	}
	if err := ClearMergeHead(r.metaDir); err != nil {
		return nil, err
	}
	outcome.TreeHash = mergeCommit.Tree
	return outcome, nil
}

// Delete removes the repository's metadata directory, leaving working
// directory files untouched.
func (r *Repository) Delete() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.RemoveAll(r.metaDir); err != nil {
		return fmt.Errorf("%w: %v", ErrRepositoryError, err)
	}
	return nil
}

