package checkpoint

import "errors"

var (
	// ErrCorrupt indicates the checkpoint file exists but cannot be
	// parsed. Unlike a missing file this is fatal at startup: resuming
	// from an unknown position would silently skip or replay the feed.
	ErrCorrupt = errors.New("checkpoint file is corrupt")

	// ErrEmptyToken indicates a save was attempted with no token.
	ErrEmptyToken = errors.New("resume token is empty")
)
