package cafcore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ref is the sum type of the three reference shapes: a direct commit hash,
// a symbolic indirection, or absent (an empty branch with no tip yet).
// Exactly one of Hash/Sym is meaningful, selected by Kind.
type Ref struct {
	Kind RefKind
	Hash Hash   // valid when Kind == RefKindHash
	Sym  string // valid when Kind == RefKindSym; relative path under refs/
}

// RefKind discriminates the Ref sum type. Match exhaustively on this rather
// than on nil checks.
type RefKind int

const (
	RefKindAbsent RefKind = iota
	RefKindHash
	RefKindSym
)

// HashRef constructs a direct reference to a commit hash.
func HashRef(h Hash) Ref { return Ref{Kind: RefKindHash, Hash: h} }

// SymRef constructs a symbolic reference to another ref path, e.g.
// "heads/main" or "HEAD".
func SymRef(path string) Ref { return Ref{Kind: RefKindSym, Sym: path} }

// BranchName extracts the trailing path component of a symbolic ref, e.g.
// "heads/main" -> "main".
func (r Ref) BranchName() string {
	if i := strings.LastIndex(r.Sym, "/"); i >= 0 {
		return r.Sym[i+1:]
	}
	return r.Sym
}

// BranchRef builds the SymRef path for a branch name.
func BranchRef(name string) Ref { return SymRef(headsPrefix + name) }

// TagRefPath builds the SymRef path for a tag name.
func TagRefPath(name string) Ref { return SymRef(tagsPrefix + name) }

const (
	headsPrefix = "heads/"
	tagsPrefix  = "tags/"
	headPath    = "HEAD"
	refsDirName = "refs"
)

// RefStore reads and writes reference files rooted at a repository's
// metadata directory.
type RefStore struct {
	metaDir string
}

// NewRefStore returns a RefStore rooted at metaDir (e.g. "<work>/.caf").
func NewRefStore(metaDir string) *RefStore {
	return &RefStore{metaDir: metaDir}
}

func (s *RefStore) filePath(relPath string) string {
	if relPath == headPath {
		return filepath.Join(s.metaDir, headPath)
	}
	return filepath.Join(s.metaDir, refsDirName, relPath)
}

// ReadRef parses the ref file at relPath (e.g. "HEAD" or "heads/main").
// A missing file is reported via ErrRefError; an empty file yields
// RefKindAbsent ("branch with no tip yet").
func (s *RefStore) ReadRef(relPath string) (Ref, error) {
	content, err := os.ReadFile(s.filePath(relPath)) //nolint:gosec // path is repo-internal
	if err != nil {
		if os.IsNotExist(err) {
			return Ref{}, fmt.Errorf("%w: no such ref %q", ErrRefError, relPath)
		}
		return Ref{}, fmt.Errorf("%w: %v", ErrRefError, err)
	}
	return parseRefContent(strings.TrimSpace(string(content)), relPath)
}

func parseRefContent(line, relPath string) (Ref, error) {
	switch {
	case line == "":
		return Ref{Kind: RefKindAbsent}, nil
	case strings.HasPrefix(line, "ref: "):
		return SymRef(strings.TrimPrefix(line, "ref: ")), nil
	case len(line) == HashLength && IsValidHash(line):
		return HashRef(Hash(line)), nil
	default:
		return Ref{}, fmt.Errorf("%w: invalid reference format in %q", ErrRefError, relPath)
	}
}

// WriteRef serializes ref to the file at relPath, creating parent
// directories as needed. A HashRef is written as its raw hex; a SymRef as
// "ref: <path>"; an absent ref as an empty file.
func (s *RefStore) WriteRef(relPath string, ref Ref) error {
	path := s.filePath(relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrRefError, err)
	}

	var content string
	switch ref.Kind {
	case RefKindHash:
		content = string(ref.Hash)
	case RefKindSym:
		content = "ref: " + ref.Sym
	case RefKindAbsent:
		content = ""
	default:
		return fmt.Errorf("%w: unknown ref kind", ErrRefError)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil { //nolint:gosec // ref files are not secrets
		return fmt.Errorf("%w: %v", ErrRefError, err)
	}
	return nil
}

// Resolve follows SymRef chains starting at relPath until a HashRef or an
// absent ref is reached.
func (s *RefStore) Resolve(relPath string) (Ref, error) {
	seen := make(map[string]bool)
	current := relPath
	for {
		if seen[current] {
			return Ref{}, fmt.Errorf("%w: cyclic ref chain at %q", ErrRefError, current)
		}
		seen[current] = true

		ref, err := s.ReadRef(current)
		if err != nil {
			return Ref{}, err
		}
		switch ref.Kind {
		case RefKindSym:
			current = ref.Sym
		default:
			return ref, nil
		}
	}
}

// ResolveName disambiguates a bare string per spec: "HEAD" (case
// insensitive), else an existing branch/tag name, else a full-length hex
// hash, else ErrRefError.
func (s *RefStore) ResolveName(name string) (Ref, error) {
	if strings.EqualFold(name, "HEAD") {
		return s.Resolve(headPath)
	}
	if s.BranchExists(name) {
		return s.Resolve(headsPrefix + name)
	}
	if s.TagExists(name) {
		return s.Resolve(tagsPrefix + name)
	}
	if IsValidHash(name) {
		return HashRef(Hash(name)), nil
	}
	return Ref{}, fmt.Errorf("%w: unresolvable ref name %q", ErrRefError, name)
}

// BranchExists reports whether a branch ref file exists.
func (s *RefStore) BranchExists(name string) bool {
	_, err := os.Stat(s.filePath(headsPrefix + name))
	return err == nil
}

// TagExists reports whether a tag ref file exists.
func (s *RefStore) TagExists(name string) bool {
	_, err := os.Stat(s.filePath(tagsPrefix + name))
	return err == nil
}

// DeleteRef removes the ref file at relPath. Deleting an absent ref is a
// no-op.
func (s *RefStore) DeleteRef(relPath string) error {
	if err := os.Remove(s.filePath(relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrRefError, err)
	}
	return nil
}

// Branches lists all branch names.
func (s *RefStore) Branches() ([]string, error) {
	return s.listRefNames(headsPrefix)
}

// Tags lists all tag names.
func (s *RefStore) Tags() ([]string, error) {
	return s.listRefNames(tagsPrefix)
}

func (s *RefStore) listRefNames(prefix string) ([]string, error) {
	dir := filepath.Join(s.metaDir, refsDirName, strings.TrimSuffix(prefix, "/"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRefError, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AllRefs flattens every file recursively under refs/ into a SymRef by
// basename, losing heads/tags disambiguation. This is spec.md §9's
// documented Open Question, preserved for CLI compatibility with the
// original implementation.
func (s *RefStore) AllRefs() ([]Ref, error) {
	root := filepath.Join(s.metaDir, refsDirName)
	var refs []Ref
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		refs = append(refs, SymRef(filepath.Base(path)))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRefError, err)
	}
	return refs, nil
}
