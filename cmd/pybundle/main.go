package main

import (
	"errors"
	"os"

	"github.com/pybundle/pybundle/pkg/cli"
	"github.com/pybundle/pybundle/pkg/pipeline"
	"github.com/pybundle/pybundle/pkg/process"
)

// Version is set at build time via -ldflags
var Version = "0.1.0"

func main() {
	if err := cli.Execute(Version); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a pipeline error to the process exit status: a missing
// artifact is 1, a failed external tool propagates its own code, and
// everything else is 1.
func exitCode(err error) int {
	if errors.Is(err, pipeline.ErrArtifactMissing) {
		return 1
	}
	if code := process.ExitCode(err); code > 0 {
		return code
	}
	return 1
}
