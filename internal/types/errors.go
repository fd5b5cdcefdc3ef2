package types

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	ErrInput            = errors.New("invalid input")
	ErrGeometry         = fmt.Errorf("%w: geometry", ErrInput)
	ErrDetectionService = errors.New("detection service failure")
	ErrStorage          = errors.New("storage failure")
	ErrEncoding         = errors.New("encoding failure")
	ErrConcurrentUpdate = errors.New("concurrent catalog update")
	ErrIncomplete       = errors.New("chunks still outstanding")
)

// StageError reports which stage failed for which asset.
type StageError struct {
	Stage   string
	AssetID string
	Kind    error
	Err     error
}

// NewStageError builds a StageError. If err already carries a kind it is
// kept, otherwise kind is used.
func NewStageError(stage, assetID string, kind, err error) *StageError {
	for _, k := range []error{ErrInput, ErrDetectionService, ErrStorage, ErrEncoding, ErrIncomplete} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return &StageError{Stage: stage, AssetID: assetID, Kind: kind, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for asset %s: %v", e.Stage, e.AssetID, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
