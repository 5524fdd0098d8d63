package predict

import "errors"

var (
	// ErrUnknownVariant indicates a variant other than A, B or C.
	ErrUnknownVariant = errors.New("predict: unknown variant")

	// ErrInferenceFailed indicates a model call that could not produce a value.
	// The failed call contributes 0 to the estimate.
	ErrInferenceFailed = errors.New("predict: inference failed")
)
