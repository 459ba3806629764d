package pipeline

import "errors"

// Sentinel errors for pipeline outcomes. These enable reliable error
// checking with errors.Is() at the CLI boundary.
var (
	// ErrArtifactMissing indicates the bundler reported success but the
	// expected output directory does not exist
	ErrArtifactMissing = errors.New("bundle output directory not found")
)
