package collector

import "fmt"

// FileReadError reports a selected file whose bytes could not be loaded.
type FileReadError struct {
	Name string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("read file %q: %v", e.Name, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }
