package mp4

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrInvalidFileType is returned when the file does not carry an ftyp box at
// offset 4 and so is not a valid MP4/M4A/M4B file.
var ErrInvalidFileType = errors.New("not a valid MP4/M4A/M4B file")

// AtomNotFoundError is returned when a required atom is missing at the point
// it was expected in the tree.
type AtomNotFoundError struct {
	Type string
}

func (err *AtomNotFoundError) Error() string {
	return fmt.Sprintf("atom not found: %s", err.Type)
}

// CorruptError is returned when the sample tables of a track contradict each
// other.
type CorruptError struct {
	Reason string
}

func (err *CorruptError) Error() string {
	return "corrupt file: " + err.Reason
}

// NotTextTrackError is returned for a track whose handler subtype is not
// "text". It is not a corruption, the track just doesn't hold chapters.
type NotTextTrackError struct {
	Subtype string
}

func (err *NotTextTrackError) Error() string {
	return fmt.Sprintf("handler subtype %q is not text", err.Subtype)
}

// IOError is returned when the underlying resource can't satisfy a read or
// seek. The resource can't be trusted after one of these, so it always aborts
// the whole extraction.
type IOError struct {
	Op     string
	Offset int64
	Err    error
}

func (err *IOError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", err.Op, err.Offset, err.Err)
}

func (err *IOError) Unwrap() error {
	return err.Err
}

func newAtomNotFound(atomType string) error {
	return errors.WithStack(&AtomNotFoundError{Type: atomType})
}

func newCorrupt(reason string) error {
	return errors.WithStack(&CorruptError{Reason: reason})
}

// IsRecoverable reports whether err only disqualifies a single track. Missing
// atoms, inconsistent tables and non-text handlers are recoverable; I/O
// failures and anything unknown are not.
func IsRecoverable(err error) bool {
	var notFound *AtomNotFoundError
	var corrupt *CorruptError
	var notText *NotTextTrackError
	return errors.As(err, &notFound) || errors.As(err, &corrupt) || errors.As(err, &notText)
}
