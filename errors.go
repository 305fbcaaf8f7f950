package ldifion

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for record decoding and pipeline failures. These are stable
// classification targets for errors.Is; most of them surface wrapped inside a
// *RecordError.
var (
	// ErrMissingDN indicates a record without a distinguished name.
	ErrMissingDN = errors.New("ldifion: record has no dn")
	// ErrUnknownChangeType indicates a changetype outside add, delete,
	// modify, modrdn and moddn.
	ErrUnknownChangeType = errors.New("ldifion: unknown changetype")
	// ErrInvalidBoolean indicates a deleteoldrdn value that is neither 0 nor 1.
	ErrInvalidBoolean = errors.New("ldifion: invalid boolean value")
	// ErrInvalidBase64 indicates a base64 value that does not decode.
	ErrInvalidBase64 = errors.New("ldifion: invalid base64 value")
	// ErrMalformedBlock indicates an LDIF block that does not follow the
	// RFC2849 grammar.
	ErrMalformedBlock = errors.New("ldifion: malformed block")
	// ErrMissingField indicates a document record whose shape does not match
	// its change type, e.g. a modify without modifications.
	ErrMissingField = errors.New("ldifion: required field missing")
	// ErrNothingTranslated indicates a run in which every non-empty input
	// unit failed to produce a single translated record.
	ErrNothingTranslated = errors.New("ldifion: not a single unit has been translated")
)

// RecordError is the recoverable per-record error tier: one LDIF block or one
// top-level document struct could not be decoded or encoded. It carries the
// offending raw content so the caller can log or inspect it. Decoders yield it
// and continue with the next block; it never terminates a stream.
type RecordError struct {
	// Lines holds the raw source lines of the failed block, or a short
	// rendering of the failed document struct.
	Lines []string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RecordError) Error() string {
	if len(e.Lines) == 0 {
		return fmt.Sprintf("record error: %v", e.Err)
	}
	return fmt.Sprintf("record error: %v in %q", e.Err, strings.Join(e.Lines, " | "))
}

// Unwrap returns the underlying cause for errors.Is and errors.As.
func (e *RecordError) Unwrap() error { return e.Err }

// recordErr wraps cause and the raw content into a *RecordError.
func recordErr(cause error, lines []string) *RecordError {
	return &RecordError{Lines: lines, Err: cause}
}

// IsRecordError reports whether err belongs to the per-record tier. Anything
// else coming out of a decoder is a stream-level failure and ends the unit.
func IsRecordError(err error) bool {
	var re *RecordError
	return errors.As(err, &re)
}
