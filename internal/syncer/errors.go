package syncer

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDisk matches failures of the vault write itself. The index was not
	// touched.
	ErrDisk = errors.New("vault operation failed")
	// ErrDesync matches durable vault changes whose index update failed.
	ErrDesync = errors.New("index desynchronized")
)

// DiskError reports a FileStore failure. The store error is wrapped as is, so
// vault.ErrNotFound and friends still match.
type DiskError struct {
	Op   string
	Path string
	Err  error
}

func (e *DiskError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *DiskError) Unwrap() error { return e.Err }

func (e *DiskError) Is(target error) bool { return target == ErrDisk }

// DesyncError reports that the vault changed but the index could not follow.
// Paths lists the index keys left inconsistent; they are repaired by the next
// reconciliation.
type DesyncError struct {
	Op    string
	Paths []string
	Err   error
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("%s %s: %v: %v", e.Op, strings.Join(e.Paths, ", "), ErrDesync, e.Err)
}

func (e *DesyncError) Unwrap() error { return e.Err }

func (e *DesyncError) Is(target error) bool { return target == ErrDesync }
