package cmd

import (
	"github.com/quatton/qfold/pkg/qerr"
	"github.com/quatton/qfold/pkg/qlog"
)

// exitIfError prints a hint that matches the error code and exits.
func exitIfError(err error) {
	if err == nil {
		return
	}
	logger := qlog.NewDefault()
	switch qerr.CodeOf(err) {
	case qerr.CodeConfigError:
		logger.Fatalf("configuration error: %v (check the base config, settings and --set values)", err)
	case qerr.CodeMissingInput:
		logger.Fatalf("missing input: %v (run 'qfold build' first or check the records table)", err)
	case qerr.CodeParseError:
		logger.Fatalf("could not parse: %v", err)
	case qerr.CodeSubmissionError:
		logger.Fatalf("submission failed: %v (is the scheduler reachable from this host?)", err)
	default:
		logger.Fatalf("%v", err)
	}
}
