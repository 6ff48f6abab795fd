package merge

import "fmt"

// MinInputs is the smallest number of documents a merge accepts.
const MinInputs = 2

// InsufficientInputError is returned when fewer than MinInputs documents are supplied.
type InsufficientInputError struct {
	Got int
}

func (e *InsufficientInputError) Error() string {
	return fmt.Sprintf("insufficient input: please select at least %d PDFs (got %d)", MinInputs, e.Got)
}

// DecodeError reports the input that could not be read as a PDF.
type DecodeError struct {
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode input %d: %v", e.Index, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError wraps a failure to assemble or serialize the merged document.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode merged document: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
