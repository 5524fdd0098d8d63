package config

import "errors"

var (
	// ErrRead indicates a config file that could not be read or parsed.
	ErrRead = errors.New("config: read failed")

	// ErrDecode indicates values that do not fit the Config types.
	ErrDecode = errors.New("config: decode failed")

	// ErrInvalid indicates a value outside its allowed range.
	ErrInvalid = errors.New("config: invalid value")
)
