package cafcore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRepository_InitAddCommitLog(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(workDir, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	if err := repo.Add("README.md"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	commitHash, err := repo.CommitWorkingDir("tester", "initial commit")
	if err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}
	if commitHash == "" {
		t.Fatal("expected non-empty commit hash")
	}

	log, err := repo.Log("HEAD", 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log) != 1 {
		t.Fatalf("expected 1 commit in log, got %d", len(log))
	}
	if log[0].Message != "initial commit" {
		t.Errorf("unexpected commit message %q", log[0].Message)
	}
}

func TestRepository_CommitWithEmptyIndexFails(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "empty"); err == nil {
		t.Error("expected commit with empty index to fail")
	}
}

func TestRepository_StatusReportsUntrackedModifiedAndStaged(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "add a"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	// Modify a tracked file without staging.
	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("a-changed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Add an untracked file.
	if err := os.WriteFile(filepath.Join(workDir, "b.txt"), []byte("b"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	statuses, err := repo.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}

	byPath := make(map[string]FileStatus)
	for _, s := range statuses {
		byPath[s.Path] = s
	}

	if byPath["a.txt"].WorkStatus != "modified" {
		t.Errorf("expected a.txt modified in work tree, got %+v", byPath["a.txt"])
	}
	if !byPath["b.txt"].IsUntracked {
		t.Errorf("expected b.txt untracked, got %+v", byPath["b.txt"])
	}
}

func TestRepository_BranchAndCheckout(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(workDir, "f.txt"), []byte("v1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("f.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "v1"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.AddBranch("feature"); err != nil {
		t.Fatalf("AddBranch: %v", err)
	}
	if err := repo.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}

	if err := os.WriteFile(filepath.Join(workDir, "f.txt"), []byte("v2"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("f.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "v2 on feature"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	content, err := os.ReadFile(filepath.Join(workDir, "f.txt"))
	if err != nil {
		t.Fatalf("reading f.txt after checkout: %v", err)
	}
	if string(content) != "v1" {
		t.Errorf("expected main's f.txt to be v1, got %q", content)
	}
}

func TestRepository_MergeCleanCreatesTwoParentCommit(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("base"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "base"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.AddBranch("feature"); err != nil {
		t.Fatalf("AddBranch: %v", err)
	}
	if err := repo.Checkout("feature"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "b.txt"), []byte("feature-only"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("b.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "add b"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	outcome, err := repo.Merge("tester", "feature")
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if outcome.Conflicted {
		t.Fatalf("expected clean merge, got conflicts: %v", outcome.ConflictPaths)
	}

	if _, err := os.Stat(filepath.Join(workDir, "b.txt")); err != nil {
		t.Errorf("expected b.txt to exist on main after merge: %v", err)
	}

	log, err := repo.Log("HEAD", 0)
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(log[0].Parents) != 2 {
		t.Errorf("expected merge commit to have 2 parents, got %d", len(log[0].Parents))
	}
}

func TestRepository_MergeRefusesWithDirtyWorkingTree(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("base"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "base"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.AddBranch("feature"); err != nil {
		t.Fatalf("AddBranch: %v", err)
	}
	if err := repo.Checkout("feature"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "b.txt"), []byte("feature-only"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("b.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "add b"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	// Dirty the working tree without staging or committing.
	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("uncommitted edit"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := repo.Merge("tester", "feature"); err == nil {
		t.Fatal("expected merge to fail with a dirty working tree")
	}

	// The dirty file must survive untouched; merge must fail before
	// touching anything.
	content, err := os.ReadFile(filepath.Join(workDir, "a.txt"))
	if err != nil {
		t.Fatalf("reading a.txt: %v", err)
	}
	if string(content) != "uncommitted edit" {
		t.Errorf("expected a.txt to remain the uncommitted edit, got %q", content)
	}
	if _, err := os.Stat(filepath.Join(workDir, "b.txt")); !os.IsNotExist(err) {
		t.Errorf("expected b.txt to not exist yet (merge should not have run), stat err = %v", err)
	}
}

func TestRepository_DeleteBranchRefusesOnLastBranch(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := repo.Add("a.txt"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := repo.CommitWorkingDir("tester", "init"); err != nil {
		t.Fatalf("CommitWorkingDir: %v", err)
	}

	if err := repo.DeleteBranch("main"); err == nil {
		t.Fatal("expected deleting the last remaining branch to fail")
	}
	if !repo.BranchExists("main") {
		t.Error("expected main to still exist after a refused delete")
	}

	if err := repo.AddBranch("feature"); err != nil {
		t.Fatalf("AddBranch: %v", err)
	}
	if err := repo.DeleteBranch("feature"); err != nil {
		t.Errorf("expected deleting a non-last branch to succeed, got %v", err)
	}
}

func TestRepository_DeleteRemovesMetaDirOnly(t *testing.T) {
	workDir := t.TempDir()
	repo, err := Init(workDir, ".caf")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := os.WriteFile(filepath.Join(workDir, "keep.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := repo.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(repo.MetaDir()); !os.IsNotExist(err) {
		t.Errorf("expected metadata directory to be gone, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, "keep.txt")); err != nil {
		t.Errorf("expected working file to survive Delete: %v", err)
	}
}
