package cafcore

import (
	"fmt"
	"path/filepath"
)

// MergeBase walks the first-parent chain of a and b only — merge commits'
// second parents are never followed — and returns the first commit that
// appears in both chains. Real DAG ancestry beyond first-parent is outside
// this engine's model; branches are treated as linear histories for merge
// purposes.
func MergeBase(store *ObjectStore, a, b Hash) (Hash, error) {
	ancestorsA := make(map[Hash]bool)
	for cur := a; cur != ""; {
		ancestorsA[cur] = true
		c, err := store.LoadCommit(cur)
		if err != nil {
			return "", fmt.Errorf("%w: walking first-parent chain of %s: %v", ErrMergeError, a, err)
		}
		if len(c.Parents) == 0 {
			break
		}
		cur = c.Parents[0]
	}

	for cur := b; cur != ""; {
		if ancestorsA[cur] {
			return cur, nil
		}
		c, err := store.LoadCommit(cur)
		if err != nil {
			return "", fmt.Errorf("%w: walking first-parent chain of %s: %v", ErrMergeError, b, err)
		}
		if len(c.Parents) == 0 {
			break
		}
		cur = c.Parents[0]
	}

	return "", fmt.Errorf("%w: %s and %s share no common ancestor", ErrMergeError, a, b)
}

// MergeFileKind classifies the outcome of reconciling one path across
// base/ours/theirs.
type MergeFileKind int

const (
	MergeUnchanged MergeFileKind = iota
	MergeTakeOurs
	MergeTakeTheirs
	MergeDeleted
	MergeConflict
)

// MergeFileResult is the reconciliation outcome for a single path.
type MergeFileResult struct {
	Path                           string
	Kind                           MergeFileKind
	Hash                           Hash // resolved content, valid for every Kind except Deleted/Conflict
	BaseHash, OursHash, TheirsHash Hash
	BasePresent, OursPresent, TheirsPresent bool
}

// ReconcileThreeWay classifies every path across base, ours, and theirs
// per the standard three-way merge matrix: unchanged, changed on one side
// only, changed identically on both, or changed differently (a conflict).
// Deletion is tracked by a path's absence from the respective map.
func ReconcileThreeWay(base, ours, theirs map[string]Hash) []MergeFileResult {
	paths := make(map[string]bool)
	for p := range base {
		paths[p] = true
	}
	for p := range ours {
		paths[p] = true
	}
	for p := range theirs {
		paths[p] = true
	}

	results := make([]MergeFileResult, 0, len(paths))
	for path := range paths {
		baseH, basePresent := base[path]
		oursH, oursPresent := ours[path]
		theirsH, theirsPresent := theirs[path]

		r := MergeFileResult{
			Path: path, BaseHash: baseH, OursHash: oursH, TheirsHash: theirsH,
			BasePresent: basePresent, OursPresent: oursPresent, TheirsPresent: theirsPresent,
		}
		r.Kind, r.Hash = classify(basePresent, oursPresent, theirsPresent, baseH, oursH, theirsH)
		results = append(results, r)
	}
	return results
}

func classify(basePresent, oursPresent, theirsPresent bool, baseH, oursH, theirsH Hash) (MergeFileKind, Hash) {
	switch {
	case !basePresent:
		switch {
		case oursPresent && !theirsPresent:
			return MergeTakeOurs, oursH
		case !oursPresent && theirsPresent:
			return MergeTakeTheirs, theirsH
		case oursPresent && theirsPresent:
			if oursH == theirsH {
				return MergeUnchanged, oursH
			}
			return MergeConflict, ""
		default:
			return MergeUnchanged, "" // added then removed on both sides before base ever saw it
		}

	case oursPresent && theirsPresent:
		switch {
		case oursH == baseH && theirsH == baseH:
			return MergeUnchanged, baseH
		case oursH == baseH:
			return MergeTakeTheirs, theirsH
		case theirsH == baseH:
			return MergeTakeOurs, oursH
		case oursH == theirsH:
			return MergeTakeOurs, oursH
		default:
			return MergeConflict, ""
		}

	case oursPresent && !theirsPresent: // deleted in theirs
		if oursH == baseH {
			return MergeDeleted, ""
		}
		return MergeConflict, ""

	case !oursPresent && theirsPresent: // deleted in ours
		if theirsH == baseH {
			return MergeDeleted, ""
		}
		return MergeConflict, ""

	default: // deleted on both sides
		return MergeDeleted, ""
	}
}

// MergeOutcome is the result of driving a full merge between two commits.
type MergeOutcome struct {
	Conflicted    bool
	ConflictPaths []string
	TreeHash      Hash // valid only when !Conflicted
}

const mergeHeadFileName = "MERGE_HEAD"

// Merge performs the full merge algorithm: first-parent merge-base,
// three-way reconciliation over the flattened trees, and for every
// conflicted path a line-level textual merge attempt. Paths that still
// can't be resolved automatically are materialized into the working
// directory with conflict markers; when any remain, MERGE_HEAD is written
// so the next commit picks theirsHash up as its second parent. The caller
// finishes the merge with CommitWorkingDir once the conflicts are
// resolved.
func Merge(store *ObjectStore, index *StagingIndex, workDir, metaDir string, ours, theirs Commit, oursHash, theirsHash Hash, otherLabel string) (*MergeOutcome, error) {
	base, err := MergeBase(store, oursHash, theirsHash)
	if err != nil {
		return nil, err
	}
	if base == oursHash {
		// fast-forward: theirs is already ahead, caller should checkout
		// theirs directly rather than creating a merge commit.
		return &MergeOutcome{TreeHash: theirs.Tree}, nil
	}
	if base == theirsHash {
		// already up to date with theirs.
		return &MergeOutcome{TreeHash: ours.Tree}, nil
	}

	baseCommit, err := store.LoadCommit(base)
	if err != nil {
		return nil, fmt.Errorf("%w: loading merge base: %v", ErrMergeError, err)
	}
	baseTree, err := store.LoadTree(baseCommit.Tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeError, err)
	}
	oursTree, err := store.LoadTree(ours.Tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeError, err)
	}
	theirsTree, err := store.LoadTree(theirs.Tree)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeError, err)
	}

	baseFiles, oursFiles, theirsFiles := map[string]Hash{}, map[string]Hash{}, map[string]Hash{}
	if err := flattenTree(store, baseTree, "", baseFiles); err != nil {
		return nil, err
	}
	if err := flattenTree(store, oursTree, "", oursFiles); err != nil {
		return nil, err
	}
	if err := flattenTree(store, theirsTree, "", theirsFiles); err != nil {
		return nil, err
	}

	results := ReconcileThreeWay(baseFiles, oursFiles, theirsFiles)

	resolved := make(map[string]Hash)
	var conflictPaths []string
	writes := make(map[string]Hash)
	var removes []string

	for _, r := range results {
		switch r.Kind {
		case MergeUnchanged, MergeTakeOurs, MergeTakeTheirs:
			resolved[r.Path] = r.Hash
			writes[r.Path] = r.Hash
		case MergeDeleted:
			removes = append(removes, r.Path)
		case MergeConflict:
			mergedHash, conflicted, err := mergeOneFile(store, r, otherLabel)
			if err != nil {
				return nil, err
			}
			if conflicted {
				conflictPaths = append(conflictPaths, r.Path)
			}
			resolved[r.Path] = mergedHash
			writes[r.Path] = mergedHash
		}
	}

	if err := applyCheckout(store, workDir, writes, removes); err != nil {
		return nil, err
	}
	if err := index.ReplaceAll(resolved); err != nil {
		return nil, err
	}

	if len(conflictPaths) > 0 {
		if err := writeMergeHead(metaDir, theirsHash); err != nil {
			return nil, err
		}
		return &MergeOutcome{Conflicted: true, ConflictPaths: conflictPaths}, nil
	}

	root := newTrieNode()
	for path, h := range resolved {
		if err := root.insert(splitPath(path), h); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMergeError, err)
		}
	}
	treeHash, err := root.save(store)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMergeError, err)
	}
	return &MergeOutcome{TreeHash: treeHash}, nil
}

// mergeOneFile attempts a textual three-way merge of a conflicted path's
// blob content. A path deleted on one side falls back to an unresolved
// conflict; content present on both sides is merged line by line as
// text, whether or not it is binary.
func mergeOneFile(store *ObjectStore, r MergeFileResult, otherLabel string) (mergedHash Hash, conflicted bool, err error) {
	var base, ours, theirs []byte
	if r.BasePresent {
		if base, err = store.GetBlob(r.BaseHash); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrMergeError, err)
		}
	}
	if r.OursPresent {
		if ours, err = store.GetBlob(r.OursHash); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrMergeError, err)
		}
	}
	if r.TheirsPresent {
		if theirs, err = store.GetBlob(r.TheirsHash); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrMergeError, err)
		}
	}

	if !r.OursPresent || !r.TheirsPresent {
		// one side deleted the path while the other modified it: keep the
		// surviving side's content unchanged (no conflict markers are
		// added) and report the path as conflicted.
		content := ours
		if content == nil {
			content = theirs
		}
		h, serr := store.SaveBlob(content)
		if serr != nil {
			return "", false, fmt.Errorf("%w: %v", ErrMergeError, serr)
		}
		return h, true, nil
	}

	result := ThreeWayMergeText(base, ours, theirs, "HEAD", otherLabel)
	h, serr := store.SaveBlob(result.Content)
	if serr != nil {
		return "", false, fmt.Errorf("%w: %v", ErrMergeError, serr)
	}
	return h, result.Conflicted, nil
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

func writeMergeHead(metaDir string, theirsHash Hash) error {
	path := filepath.Join(metaDir, mergeHeadFileName)
	return writeFileAtomic(path, []byte(theirsHash))
}

// ReadMergeHead returns the in-progress merge's other-side commit hash, or
// "" if no merge is in progress.
func ReadMergeHead(metaDir string) (Hash, error) {
	content, err := readFileIfExists(filepath.Join(metaDir, mergeHeadFileName))
	if err != nil {
		return "", err
	}
	if content == nil {
		return "", nil
	}
	return Hash(content), nil
}

// ClearMergeHead removes the in-progress merge marker once its commit has
// been created.
func ClearMergeHead(metaDir string) error {
	return removeFileIfExists(filepath.Join(metaDir, mergeHeadFileName))
}
