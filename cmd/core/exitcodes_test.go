package main

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodeForNil(t *testing.T) {
	if got := exitCodeFor(nil); got != exitOkay {
		t.Fatalf("exitCodeFor(nil) = %d, want %d", got, exitOkay)
	}
}

func TestExitCodeForUnrecognizedOperation(t *testing.T) {
	err := fmt.Errorf("%w: %q", errUnrecognizedOperation, "Bogus")
	if got := exitCodeFor(err); got != exitOperationNotSupported {
		t.Fatalf("exitCodeFor(unrecognized op) = %d, want %d", got, exitOperationNotSupported)
	}
}

func TestExitCodeForUnsupportedEnvironment(t *testing.T) {
	err := fmt.Errorf("%w: %v", errUnsupportedEnvironment, errors.New("no os-release"))
	if got := exitCodeFor(err); got != exitMissingDependency {
		t.Fatalf("exitCodeFor(unsupported env) = %d, want %d", got, exitMissingDependency)
	}
}

func TestExitCodeForOtherErrorFallsBackToHandlerFailed(t *testing.T) {
	if got := exitCodeFor(errors.New("boom")); got != exitHandlerFailed {
		t.Fatalf("exitCodeFor(other) = %d, want %d", got, exitHandlerFailed)
	}
}
