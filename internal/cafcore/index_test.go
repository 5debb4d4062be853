package cafcore

import (
	"os"
	"path/filepath"
	"testing"
)

func setupIndex(t *testing.T) (*StagingIndex, string) {
	t.Helper()
	metaDir := t.TempDir()
	store := NewObjectStore(filepath.Join(metaDir, "objects"))
	if err := os.MkdirAll(store.dir, 0o755); err != nil {
		t.Fatalf("mkdir objects: %v", err)
	}
	return NewStagingIndex(metaDir, store), metaDir
}

func TestStagingIndex_UpdateAndRead(t *testing.T) {
	idx, _ := setupIndex(t)

	if err := idx.UpdateIndex("b.txt", Hash("000000000000000000000000000000000000000b")); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	if err := idx.UpdateIndex("a.txt", Hash("000000000000000000000000000000000000000a")); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}

	read, err := idx.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(read.ByPath) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(read.ByPath))
	}
	if read.ByPath["a.txt"] != Hash("000000000000000000000000000000000000000a") {
		t.Errorf("unexpected hash for a.txt: %v", read.ByPath["a.txt"])
	}
}

func TestStagingIndex_UpdateReplacesExisting(t *testing.T) {
	idx, _ := setupIndex(t)

	if err := idx.UpdateIndex("a.txt", Hash("000000000000000000000000000000000000000a")); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	if err := idx.UpdateIndex("a.txt", Hash("000000000000000000000000000000000000000b")); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}

	read, err := idx.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(read.ByPath) != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", len(read.ByPath))
	}
	if read.ByPath["a.txt"] != Hash("000000000000000000000000000000000000000b") {
		t.Errorf("expected updated hash, got %v", read.ByPath["a.txt"])
	}
}

func TestStagingIndex_Remove(t *testing.T) {
	idx, _ := setupIndex(t)

	if err := idx.UpdateIndex("a.txt", Hash("000000000000000000000000000000000000000a")); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	if err := idx.RemoveFromIndex("a.txt"); err != nil {
		t.Fatalf("RemoveFromIndex: %v", err)
	}

	read, err := idx.ReadIndex()
	if err != nil {
		t.Fatalf("ReadIndex: %v", err)
	}
	if len(read.ByPath) != 0 {
		t.Fatalf("expected empty index, got %d entries", len(read.ByPath))
	}
}

func TestStagingIndex_RemoveMissingIsNoop(t *testing.T) {
	idx, _ := setupIndex(t)
	if err := idx.RemoveFromIndex("missing.txt"); err != nil {
		t.Fatalf("RemoveFromIndex on missing path should be a no-op: %v", err)
	}
}

func TestNormalizePath_RejectsEscape(t *testing.T) {
	workDir := t.TempDir()
	if _, err := NormalizePath(workDir, "../outside.txt", ".caf"); err == nil {
		t.Error("expected error for path escaping working directory")
	}
}

func TestNormalizePath_RejectsMetaDir(t *testing.T) {
	workDir := t.TempDir()
	if _, err := NormalizePath(workDir, ".caf/index", ".caf"); err == nil {
		t.Error("expected error for path touching metadata directory")
	}
	if _, err := NormalizePath(workDir, ".CAF/index", ".caf"); err == nil {
		t.Error("expected metadata directory check to be case-insensitive")
	}
}

func TestNormalizePath_Ok(t *testing.T) {
	workDir := t.TempDir()
	got, err := NormalizePath(workDir, "sub/file.txt", ".caf")
	if err != nil {
		t.Fatalf("NormalizePath: %v", err)
	}
	if got != "sub/file.txt" {
		t.Errorf("expected sub/file.txt, got %q", got)
	}
}

func TestBuildTreeFromIndex(t *testing.T) {
	idx, _ := setupIndex(t)

	entries := map[string]Hash{
		"a.txt":         idx.store.HashBlob([]byte("a")),
		"dir/b.txt":     idx.store.HashBlob([]byte("b")),
		"dir/sub/c.txt": idx.store.HashBlob([]byte("c")),
	}
	for _, content := range []string{"a", "b", "c"} {
		if _, err := idx.store.SaveBlob([]byte(content)); err != nil {
			t.Fatalf("SaveBlob: %v", err)
		}
	}

	treeHash, err := idx.BuildTreeFromIndex(&Index{ByPath: entries})
	if err != nil {
		t.Fatalf("BuildTreeFromIndex: %v", err)
	}

	tree, err := idx.store.LoadTree(treeHash)
	if err != nil {
		t.Fatalf("LoadTree: %v", err)
	}
	if _, ok := tree.Records["a.txt"]; !ok {
		t.Error("expected a.txt at root")
	}
	dirRec, ok := tree.Records["dir"]
	if !ok || dirRec.Kind != RecordTree {
		t.Fatalf("expected dir tree entry, got %+v", dirRec)
	}
	subTree, err := idx.store.LoadTree(dirRec.Hash)
	if err != nil {
		t.Fatalf("LoadTree(dir): %v", err)
	}
	if _, ok := subTree.Records["b.txt"]; !ok {
		t.Error("expected dir/b.txt")
	}
	if _, ok := subTree.Records["sub"]; !ok {
		t.Error("expected dir/sub")
	}
}

func TestBuildTreeFromIndex_ConflictingPaths(t *testing.T) {
	idx, _ := setupIndex(t)

	entries := map[string]Hash{
		"a":   idx.store.HashBlob([]byte("file")),
		"a/b": idx.store.HashBlob([]byte("nested")),
	}

	if _, err := idx.BuildTreeFromIndex(&Index{ByPath: entries}); err == nil {
		t.Error("expected ErrIndexConflict for file/directory collision")
	}
}
