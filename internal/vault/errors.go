package vault

import (
	"errors"
	"fmt"
	"io/fs"
)

// Failure kinds reported by a FileStore. Match them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrIO               = errors.New("i/o error")
	// ErrOutsideVault is a permission-denied kind for paths escaping the vault root.
	ErrOutsideVault = fmt.Errorf("%w: path outside vault", ErrPermissionDenied)
)

// PathError records a FileStore failure for one vault path.
type PathError struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *PathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }

// Is matches the failure kind as well as the wrapped cause.
func (e *PathError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// classify maps an os-level error onto a PathError with the matching kind.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	kind := ErrIO
	switch {
	case errors.Is(err, fs.ErrNotExist):
		kind = ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = ErrPermissionDenied
	}
	return &PathError{Op: op, Path: path, Kind: kind, Err: err}
}
