package corpus

import "errors"

var (
	// ErrMalformedDump marks a fatal decode failure while scanning the dump.
	ErrMalformedDump = errors.New("malformed dump")
	// ErrRender marks a transport failure or unusable response from the renderer.
	ErrRender = errors.New("render failed")
	// ErrEmptyContent marks a page whose normalized text is empty.
	ErrEmptyContent = errors.New("empty content")
	// ErrStorage marks a fatal failure creating, writing, or closing the corpus file.
	ErrStorage = errors.New("storage i/o")
)
