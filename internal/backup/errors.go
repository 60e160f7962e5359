package backup

import "fmt"

// FilesystemError means the output folder or the restore guide could not be
// created or written. It aborts the cycle.
type FilesystemError struct {
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem error on %s: %v", e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
