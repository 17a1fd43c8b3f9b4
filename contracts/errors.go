package contracts

import (
	"errors"
	"fmt"
)

// Stage names the step of a single-file conversion that failed.
type Stage string

const (
	StageRead   Stage = "read"
	StageDecode Stage = "decode"
	StageEncode Stage = "encode"
	StageWrite  Stage = "write"
)

var (
	ErrRead   = errors.New("read error")
	ErrDecode = errors.New("decode error")
	ErrEncode = errors.New("encode error")
	ErrWrite  = errors.New("write error")
)

func (s Stage) sentinel() error {
	switch s {
	case StageRead:
		return ErrRead
	case StageDecode:
		return ErrDecode
	case StageEncode:
		return ErrEncode
	case StageWrite:
		return ErrWrite
	}
	return nil
}

// ConversionError is the failure of one file at one stage.
// errors.Is matches both the stage sentinel and the wrapped cause.
type ConversionError struct {
	Stage Stage
	Path  string
	Err   error
}

func NewConversionError(stage Stage, path string, err error) *ConversionError {
	return &ConversionError{Stage: stage, Path: path, Err: err}
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s error: %v", e.Stage, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	if s := e.Stage.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// WithPath returns a copy of e attributed to path.
func (e *ConversionError) WithPath(path string) *ConversionError {
	c := *e
	c.Path = path
	return &c
}
