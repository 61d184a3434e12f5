package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrSceneUnavailable means no scene is ready. Public operations recover
	// from it locally by returning an empty result.
	ErrSceneUnavailable = errors.New("scene unavailable")

	// ErrStaleGeneration means a newer load superseded the work.
	ErrStaleGeneration = errors.New("stale scene generation")

	// ErrUnknownMaterial is returned by a Port for an out of range material index.
	ErrUnknownMaterial = errors.New("unknown material")

	// ErrUnknownVariant is returned by a Port when a named variant does not exist.
	ErrUnknownVariant = errors.New("unknown variant")

	// ErrNotSupported is returned when the loaded scene lacks an optional capability.
	ErrNotSupported = errors.New("not supported by scene")
)

// AssetError reports a scene or texture that could not be fetched or decoded.
type AssetError struct {
	URL string
	Err error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset %s: %v", e.URL, e.Err)
}

func (e *AssetError) Unwrap() error { return e.Err }
