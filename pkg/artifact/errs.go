package artifact

import "errors"

var (
	// ErrLoadFailed indicates an artifact file that exists but could not be
	// read or decoded.
	ErrLoadFailed = errors.New("artifact: load failed")

	// ErrManifestInvalid indicates a manifest that is not a JSON object.
	ErrManifestInvalid = errors.New("artifact: invalid manifest")
)
