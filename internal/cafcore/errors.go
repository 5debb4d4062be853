package cafcore

import "errors"

// Error taxonomy by kind, not by concrete type — callers use errors.Is
// against these sentinels, matching the kinds spec.md §7 names.
var (
	ErrRepositoryNotFound = errors.New("caf: repository not found")
	ErrRepositoryError    = errors.New("caf: repository error")
	ErrRefError           = errors.New("caf: ref error")
	ErrDiffError          = errors.New("caf: diff error")
	ErrCheckoutError      = errors.New("caf: checkout error")
	ErrMergeError         = errors.New("caf: merge error")
	ErrConflictError      = errors.New("caf: merge conflict error")
	ErrTimeout            = errors.New("caf: timed out")
	ErrInvalidArgument    = errors.New("caf: invalid argument")
	ErrObjectMissing      = errors.New("caf: object missing")
	ErrNotADirectory      = errors.New("caf: not a directory")
	ErrIndexConflict      = errors.New("caf: index tree conflict")
)
