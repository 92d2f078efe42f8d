package status

import (
	"fmt"
	"strings"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/internal/util"
)

// operationState holds the in-memory, accumulating view of one operation's
// progress: its package list and its most-recent-first error list.
type operationState struct {
	patches []models.Package
	errors  []ErrorDetail
	seen    map[string]struct{}
}

func newOperationState() *operationState {
	return &operationState{seen: map[string]struct{}{}}
}

// addError coalesces duplicate (by normalized text) messages and keeps only
// the MaxErrorsRetained most recent, trimming from the tail before
// prepending the new one (§C.4 / original __add_error).
func (s *operationState) addError(code int, message string) {
	normalized := strings.TrimSpace(strings.ToLower(message))
	if _, dup := s.seen[normalized]; dup {
		return
	}
	s.seen[normalized] = struct{}{}

	truncated := message
	if len([]rune(truncated)) > ErrorMsgLimit {
		truncated = util.Truncate(truncated, ErrorMsgLimit-1) + "…"
	}

	entry := ErrorDetail{Code: code, Message: truncated}
	for len(s.errors) >= MaxErrorsRetained {
		s.errors = s.errors[:len(s.errors)-1]
	}
	s.errors = append([]ErrorDetail{entry}, s.errors...)
}

func (s *operationState) errorsBlock(logPathHint string) Errors {
	code := 0
	message := ""
	if len(s.errors) > 0 {
		code = 1
		message = fmt.Sprintf("%d error(s) reported. See %s for more details.", len(s.errors), logPathHint)
	}
	return Errors{Code: code, Details: append([]ErrorDetail(nil), s.errors...), Message: message}
}

// Handler accumulates assessment/installation progress and writes both the
// complete and host-facing-truncated StatusFile.
type Handler struct {
	env    recorder.Environment
	reboot *reboot.Manager

	activityID  string
	operation   models.Operation
	startTime   string
	startedBy   string

	assessment   *operationState
	installation *operationState

	maintenanceWindowExceeded bool
	logPathHint               string

	patchVersion              string
	shouldReportToHealthStore bool

	automaticOSPatchState string
	autoAssessmentState   string

	maintenanceRunID string
}

// NewHandler constructs a Handler. If rebootMgr reports a Started status
// left over from a just-finished reboot, it is promoted to Completed here
// (§C.3 — this is how the post-reboot core instance discovers it survived
// the reboot it triggered).
func NewHandler(env recorder.Environment, rebootMgr *reboot.Manager, activityID string, operation models.Operation, startTime, logPathHint string) *Handler {
	rebootMgr.PromoteStartedToCompletedOnLoad()
	return &Handler{
		env:          env,
		reboot:       rebootMgr,
		activityID:   activityID,
		operation:    operation,
		startTime:    startTime,
		startedBy:    "User",
		assessment:   newOperationState(),
		installation: newOperationState(),
		logPathHint:  logPathHint,
	}
}

// SetStartedByPlatform marks the run as platform-initiated
// (exec_auto_assess_only), affecting AssessmentSummary.startedBy.
func (h *Handler) SetStartedByPlatform() {
	h.startedBy = "Platform"
}

// SetMaintenanceRunID records the host-agent-supplied maintenance run id,
// echoed in InstallationSummary and used to derive health-store patch
// version.
func (h *Handler) SetMaintenanceRunID(id string) {
	h.maintenanceRunID = id
}

// SetHealthStoreReporting records whether a PatchMetadataForHealthStore
// substatus should be emitted, and the patch version to report.
func (h *Handler) SetHealthStoreReporting(shouldReport bool, patchVersion string) {
	h.shouldReportToHealthStore = shouldReport
	h.patchVersion = patchVersion
}

// SetConfigurePatchingResult records the outcome of a ConfigurePatching
// operation.
func (h *Handler) SetConfigurePatchingResult(automaticOSPatchState, autoAssessmentState string) {
	h.automaticOSPatchState = automaticOSPatchState
	h.autoAssessmentState = autoAssessmentState
}

// SetMaintenanceWindowExceeded records that the maintenance window ran out
// before installation completed.
func (h *Handler) SetMaintenanceWindowExceeded() {
	h.maintenanceWindowExceeded = true
}

// AddAssessmentError records an error against the current assessment.
func (h *Handler) AddAssessmentError(code int, message string) {
	h.assessment.addError(code, message)
}

// AddInstallationError records an error against the current installation.
func (h *Handler) AddInstallationError(code int, message string) {
	h.installation.addError(code, message)
}

// SetPackageAssessmentStatus upserts-by-patchId: if names/versions identify
// packages already tracked, their classification is updated in place;
// otherwise they are appended (§C.1 — original's bulk bucket-status calls).
func (h *Handler) SetPackageAssessmentStatus(pkgs []models.Package) {
	h.assessment.patches = upsertByPatchID(h.assessment.patches, pkgs)
}

// SetPackageInstallStatus upserts-by-patchId into the installation list,
// mirroring SetPackageAssessmentStatus.
func (h *Handler) SetPackageInstallStatus(pkgs []models.Package) {
	h.installation.patches = upsertByPatchID(h.installation.patches, pkgs)
}

func upsertByPatchID(existing []models.Package, updates []models.Package) []models.Package {
	index := make(map[string]int, len(existing))
	for i, p := range existing {
		index[p.PatchID()] = i
	}
	for _, u := range updates {
		if i, ok := index[u.PatchID()]; ok {
			existing[i] = u
		} else {
			index[u.PatchID()] = len(existing)
			existing = append(existing, u)
		}
	}
	return existing
}

func (h *Handler) assessmentCounts() (criticalSecurity, other int) {
	for _, p := range h.assessment.patches {
		if p.IsSecurityOrCritical() {
			criticalSecurity++
		} else {
			other++
		}
	}
	return
}

func (h *Handler) installationCounts() (notSelected, excluded, pending, installed, failed int) {
	for _, p := range h.installation.patches {
		switch p.State {
		case models.StateNotSelected:
			notSelected++
		case models.StateExcluded:
			excluded++
		case models.StatePending:
			pending++
		case models.StateInstalled:
			installed++
		case models.StateFailed:
			failed++
		}
	}
	return
}
