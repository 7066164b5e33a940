package layerpack

import (
	"errors"
	"fmt"
)

var (
	ErrDecode  = errors.New("layerpack: decode failed")
	ErrEncode  = errors.New("layerpack: encode failed")
	ErrArchive = errors.New("layerpack: archive failed")
)

// Stage is a step of a Process call.
type Stage string

const (
	StageFetching  Stage = "fetching"
	StageDecoding  Stage = "decoding"
	StageEncoding  Stage = "encoding"
	StageArchiving Stage = "archiving"
	StageStoring   Stage = "storing"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

func (s Stage) sentinel() error {
	switch s {
	case StageDecoding:
		return ErrDecode
	case StageEncoding:
		return ErrEncode
	case StageArchiving:
		return ErrArchive
	default:
		return nil
	}
}

// StageError reports a failure of the decode, encode or archive stage.
// Storage failures are not wrapped; they surface as *StorageError.
type StageError struct {
	Stage Stage
	// Index is the image being processed, or -1 when the failure is not
	// tied to one image.
	Index int
	Err   error
}

func (e *StageError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s image %d: %v", e.Stage, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes both the stage sentinel (ErrDecode, ErrEncode, ErrArchive)
// and the underlying cause.
func (e *StageError) Unwrap() []error {
	if s := e.Stage.sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}
