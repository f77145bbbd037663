package engine

import "fmt"

// NotLoadedError is returned by operations attempted before Load selected a
// backend.
type NotLoadedError struct {
	Op string
}

func (e *NotLoadedError) Error() string {
	if e.Op == "" {
		return "engine: no backend selected"
	}
	return fmt.Sprintf("engine: %s called before a backend was selected", e.Op)
}

// Is matches any *NotLoadedError.
func (e *NotLoadedError) Is(target error) bool {
	_, ok := target.(*NotLoadedError)
	return ok
}

// ErrNotLoaded matches every *NotLoadedError via errors.Is.
var ErrNotLoaded error = &NotLoadedError{}

func notLoaded(op string) error {
	return &NotLoadedError{Op: op}
}

// SourceError reports that a job source could not be loaded: it failed to
// probe, decode, or yield a still frame.
type SourceError struct {
	Ext string
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("loading %s source: %v", e.Ext, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
