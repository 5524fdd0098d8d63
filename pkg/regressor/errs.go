package regressor

import "errors"

var (
	// ErrInvalidDocument indicates content that is not a well-formed model document
	// (not JSON, bad gzip stream, or a schema violation).
	ErrInvalidDocument = errors.New("regressor: invalid model document")

	// ErrUnknownKind indicates a document whose kind has no registered decoder.
	ErrUnknownKind = errors.New("regressor: unknown model kind")

	// ErrBadParams indicates params that do not fit the declared kind.
	ErrBadParams = errors.New("regressor: bad params")

	// ErrFeatureWidth indicates a row narrower than the model reads, or a model
	// reading more features than its document declares.
	ErrFeatureWidth = errors.New("regressor: feature width mismatch")
)
