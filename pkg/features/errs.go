package features

import "errors"

// ErrBadType indicates a type field that cannot be read as a string.
var ErrBadType = errors.New("features: type is not a string")
