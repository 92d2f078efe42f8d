package pkgmanager

import "strings"

// Disposition classifies a package-manager exit as the orchestrator needs
// to react to it (§6.5, §7).
type Disposition int

const (
	// DispositionOK means the exit represents success or a benign no-op.
	DispositionOK Disposition = iota
	// DispositionRetryable means a transient condition; retry with backoff.
	DispositionRetryable
	// DispositionRepeatOperation means the manager itself was updated and
	// the whole install loop must run again (ZYPPER 103 pattern).
	DispositionRepeatOperation
	// DispositionRebootRequired means the exit itself signals a pending
	// reboot (ZYPPER 102).
	DispositionRebootRequired
	// DispositionFatal means the run cannot continue for this package
	// manager invocation.
	DispositionFatal
	// DispositionManagerUnhealthy means the package manager itself is in a
	// broken state (e.g. dpkg interrupted) — fatal for the whole run, not
	// just this package.
	DispositionManagerUnhealthy
)

// ClassifyZypper implements the zypper-family exit code table (§6.5).
func ClassifyZypper(exitCode int) Disposition {
	switch exitCode {
	case 0:
		return DispositionOK
	case 103:
		return DispositionRepeatOperation
	case 102:
		return DispositionRebootRequired
	case 7:
		return DispositionRetryable // locked
	case 6:
		return DispositionRetryable // no repos defined, refresh services
	case 8:
		return DispositionRetryable // file conflict, retry with --replacefiles
	default:
		return DispositionFatal
	}
}

// ClassifyYum implements the yum-family exit code table: {0, 1, 100} are
// non-error.
func ClassifyYum(exitCode int) Disposition {
	switch exitCode {
	case 0, 1, 100:
		return DispositionOK
	default:
		return DispositionFatal
	}
}

// ClassifyApt implements the apt-family exit classification: a non-zero
// exit whose output mentions dpkg being interrupted is unrecoverable
// without manual action.
func ClassifyApt(exitCode int, combinedOutput string) Disposition {
	if exitCode == 0 {
		return DispositionOK
	}
	if strings.Contains(strings.ToLower(combinedOutput), "dpkg was interrupted") {
		return DispositionManagerUnhealthy
	}
	return DispositionRetryable
}
