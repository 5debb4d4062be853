package cafcore

import (
	"bytes"
	"testing"
)

func TestThreeWayMergeText_NoConflictWhenOnlyOneSideChanges(t *testing.T) {
	base := []byte("line1\nline2\nline3\n")
	ours := []byte("line1\nCHANGED\nline3\n")
	theirs := base

	result := ThreeWayMergeText(base, ours, theirs, "ours", "theirs")
	if result.Conflicted {
		t.Errorf("expected no conflict, got content: %s", result.Content)
	}
	if !bytes.Equal(result.Content, ours) {
		t.Errorf("expected ours content to win, got %q", result.Content)
	}
}

func TestThreeWayMergeText_NonOverlappingChangesBothApply(t *testing.T) {
	base := []byte("a\nb\nc\nd\ne\n")
	ours := []byte("A\nb\nc\nd\ne\n")
	theirs := []byte("a\nb\nc\nd\nE\n")

	result := ThreeWayMergeText(base, ours, theirs, "ours", "theirs")
	if result.Conflicted {
		t.Fatalf("expected no conflict, got: %s", result.Content)
	}
	want := "A\nb\nc\nd\nE\n"
	if string(result.Content) != want {
		t.Errorf("expected %q, got %q", want, result.Content)
	}
}

func TestThreeWayMergeText_OverlappingChangeConflicts(t *testing.T) {
	base := []byte("line1\nline2\nline3\n")
	ours := []byte("line1\nOURS\nline3\n")
	theirs := []byte("line1\nTHEIRS\nline3\n")

	result := ThreeWayMergeText(base, ours, theirs, "HEAD", "feature")
	if !result.Conflicted {
		t.Fatal("expected a conflict")
	}
	if !hasConflictMarkers(result.Content) {
		t.Error("expected conflict markers in output")
	}
	if !bytes.Contains(result.Content, []byte("<<<<<<< HEAD")) {
		t.Error("expected ours label in conflict marker")
	}
	if !bytes.Contains(result.Content, []byte(">>>>>>> feature")) {
		t.Error("expected theirs label in conflict marker")
	}
}

func TestThreeWayMergeText_IdenticalChangeResolvesCleanly(t *testing.T) {
	base := []byte("line1\nline2\n")
	changed := []byte("line1\nCHANGED\n")

	result := ThreeWayMergeText(base, changed, changed, "ours", "theirs")
	if result.Conflicted {
		t.Errorf("identical edits on both sides should not conflict, got: %s", result.Content)
	}
	if string(result.Content) != string(changed) {
		t.Errorf("expected %q, got %q", changed, result.Content)
	}
}

func TestHasConflictMarkers(t *testing.T) {
	if hasConflictMarkers([]byte("plain text")) {
		t.Error("plain text should not have conflict markers")
	}
	if !hasConflictMarkers([]byte("<<<<<<< HEAD\nfoo\n=======\nbar\n>>>>>>> theirs\n")) {
		t.Error("expected conflict markers to be detected")
	}
}

func TestSplitLinesJoinLinesRoundTrip(t *testing.T) {
	content := []byte("one\ntwo\nthree\n")
	lines := splitLines(content)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %v", len(lines), lines)
	}
	if !bytes.Equal(joinLines(lines), content) {
		t.Errorf("round trip mismatch: %q", joinLines(lines))
	}
}

func TestSplitLines_Empty(t *testing.T) {
	if lines := splitLines(nil); lines != nil {
		t.Errorf("expected nil for empty content, got %v", lines)
	}
}
