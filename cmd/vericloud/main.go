package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Analysis completed
	ExitDeceptive = 1 // Verdict was Deceptive and --fail-on-deceptive was set
	ExitError     = 2 // Configuration or runtime error
)

// DeceptiveVerdictError indicates that the analysis ran successfully but the
// verdict was Deceptive and the caller asked for a failing exit status.
type DeceptiveVerdictError struct {
	Message string
}

func (e *DeceptiveVerdictError) Error() string {
	return e.Message
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error returned by a command onto the process status.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var deceptive *DeceptiveVerdictError
	if errors.As(err, &deceptive) {
		return ExitDeceptive
	}
	// All other errors are configuration/runtime errors
	return ExitError
}
