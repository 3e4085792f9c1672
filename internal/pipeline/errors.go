package pipeline

import "errors"

// Input-shape failures. Surfaced before any namespace exists, so no
// cleanup is needed and no retry is attempted.
var (
	ErrMalformedPrompt = errors.New("prompt contains no comparison structure")
	ErrAmbiguousIntent = errors.New("could not identify two distinct entities to compare")
)

// ErrNoContent reports that acquisition succeeded but chunking yielded
// nothing worth indexing.
var ErrNoContent = errors.New("no content chunks produced")

// ErrGeneration classifies failures of the grounded-completion call.
var ErrGeneration = errors.New("generation failed")
