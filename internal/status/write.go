package status

import (
	"encoding/json"
	"fmt"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/reboot"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// Summary is a compact snapshot of the current run's outcome and counts,
// independent of the StatusFile JSON shape, for callers (the core's
// end-of-run internal/history record) that want totals without re-parsing
// what was written.
type Summary struct {
	ActivityID            string
	Operation             models.Operation
	Outcome               Status
	StartTime             string
	CriticalSecurityCount int
	OtherCount            int
	InstalledCount        int
	FailedCount           int
}

// Summary reports the current run's outcome and patch counts.
func (h *Handler) Summary() Summary {
	criticalSecurity, other := h.assessmentCounts()
	_, _, _, installed, failed := h.installationCounts()
	return Summary{
		ActivityID:            h.activityID,
		Operation:             h.operation,
		Outcome:               h.overallStatus(),
		StartTime:             h.startTime,
		CriticalSecurityCount: criticalSecurity,
		OtherCount:            other,
		InstalledCount:        installed,
		FailedCount:           failed,
	}
}

// Write composes the current in-memory state into a document, writes the
// unbounded complete file first (§4.8 step 1), then writes the host-facing
// file, truncating it if necessary to fit AgentLimit.
func (h *Handler) Write(completePath, truncatedPath string) error {
	doc, err := h.compose()
	if err != nil {
		return err
	}

	completeData, err := marshalArrayOfOne(doc)
	if err != nil {
		return err
	}
	if err := writeErr(h.env, completePath, completeData); err != nil {
		return err
	}

	truncatedData := completeData
	if len(truncatedData) > AgentLimit {
		truncatedDoc := truncate(doc)
		truncatedData, err = marshalArrayOfOne(truncatedDoc)
		if err != nil {
			return err
		}
	}
	return writeErr(h.env, truncatedPath, truncatedData)
}

func (h *Handler) compose() (document, error) {
	var subs []substatus

	switch h.operation {
	case "Assessment":
		sub, err := h.composeAssessment()
		if err != nil {
			return document{}, err
		}
		subs = append(subs, sub)
	case "Installation":
		sub, err := h.composeInstallation()
		if err != nil {
			return document{}, err
		}
		subs = append(subs, sub)
		if h.shouldReportToHealthStore {
			hsSub, err := h.composeHealthStore()
			if err != nil {
				return document{}, err
			}
			subs = append(subs, hsSub)
		}
	case "ConfigurePatching":
		sub, err := h.composeConfigurePatching()
		if err != nil {
			return document{}, err
		}
		subs = append(subs, sub)
	}

	overall := h.overallStatus()
	return newDocument(h.env.Now(), h.operation, overall, subs), nil
}

func (h *Handler) overallStatus() Status {
	hasAssessmentErrors := len(h.assessment.errors) > 0
	hasInstallationErrors := len(h.installation.errors) > 0
	switch h.operation {
	case "Assessment":
		if hasAssessmentErrors {
			return StatusError
		}
		return StatusSuccess
	case "Installation":
		if h.maintenanceWindowExceeded {
			return StatusError
		}
		if hasInstallationErrors {
			return StatusError
		}
		return StatusSuccess
	default:
		return StatusSuccess
	}
}

func (h *Handler) composeAssessment() (substatus, error) {
	criticalSecurity, other := h.assessmentCounts()
	patches := make([]PatchJSON, 0, len(h.assessment.patches))
	for _, p := range h.assessment.patches {
		patches = append(patches, toPatchJSON(p))
	}
	now := h.env.Now().UTC().Format(timeLayout)
	summary := AssessmentSummary{
		ActivityID:                     h.activityID,
		RebootPending:                  h.reboot.Current() == reboot.Required || h.reboot.Current() == reboot.Started,
		CriticalAndSecurityPatchCount: criticalSecurity,
		OtherPatchCount:                other,
		Patches:                        patches,
		StartTime:                      h.startTime,
		LastModifiedTime:               now,
		StartedBy:                      h.startedBy,
		Errors:                         h.assessment.errorsBlock(h.logPathHint),
	}
	status := StatusSuccess
	if len(h.assessment.errors) > 0 {
		status = StatusError
	}
	return marshalSubstatus(SubstatusAssessment, status, 0, summary)
}

func (h *Handler) composeInstallation() (substatus, error) {
	notSelected, excluded, pending, installed, failed := h.installationCounts()
	patches := make([]PatchJSON, 0, len(h.installation.patches))
	for _, p := range h.installation.patches {
		patches = append(patches, toPatchJSON(p))
	}
	now := h.env.Now().UTC().Format(timeLayout)
	summary := InstallationSummary{
		ActivityID:                h.activityID,
		RebootStatus:              string(h.reboot.Current()),
		MaintenanceWindowExceeded: h.maintenanceWindowExceeded,
		NotSelectedPatchCount:     notSelected,
		ExcludedPatchCount:        excluded,
		PendingPatchCount:         pending,
		InstalledPatchCount:       installed,
		FailedPatchCount:          failed,
		Patches:                   patches,
		StartTime:                 h.startTime,
		LastModifiedTime:          now,
		MaintenanceRunID:          h.maintenanceRunID,
		Errors:                    h.installation.errorsBlock(h.logPathHint),
	}
	status := StatusSuccess
	if h.maintenanceWindowExceeded || len(h.installation.errors) > 0 {
		status = StatusError
	}
	return marshalSubstatus(SubstatusInstallation, status, 0, summary)
}

func (h *Handler) composeConfigurePatching() (substatus, error) {
	var summary ConfigurePatchingSummary
	summary.AutomaticOSPatchState = h.automaticOSPatchState
	summary.AutoAssessmentStatus.AutoAssessmentState = h.autoAssessmentState
	return marshalSubstatus(SubstatusConfigurePatching, StatusSuccess, 0, summary)
}

func (h *Handler) composeHealthStore() (substatus, error) {
	summary := HealthStoreSummary{
		PatchVersion:              h.patchVersion,
		ShouldReportToHealthStore: h.shouldReportToHealthStore,
	}
	return marshalSubstatus(SubstatusHealthStore, StatusSuccess, 0, summary)
}

const timeLayout = "2006-01-02T15:04:05Z"

// truncate implements §4.8's bounded-truncation algorithm. It is a linear
// descent, not a binary search (the exact search strategy is left open by
// design; any strategy meeting the invariants is acceptable):
//  1. Installation records outrank assessment records: assessment patches
//     are shrunk first, down to MinAssessmentPatchesRetained, before any
//     installation patch is dropped.
//  2. Every non-"patches" field is preserved byte-for-byte relative to the
//     complete document, other than the errors/status fields step 4c-4e
//     updates on a cut substatus.
//  3. A tombstone record with PatchID TruncatedPatchID is appended to
//     whichever list was cut, so the host agent can tell the list is
//     incomplete.
//  4. Descent targets InternalLimit rather than AgentLimit, reserving
//     headroom for the truncation bookkeeping (the warning error entry)
//     added to the cut substatus.
func truncate(doc document) document {
	for i := range doc.Status.Substatus {
		sub := &doc.Status.Substatus[i]
		if sub.Name != SubstatusAssessment {
			continue
		}
		shrinkAssessmentPatches(sub)
		if measure(doc) <= InternalLimit {
			return doc
		}
	}

	// Second pass: if assessment shrinking alone was insufficient, drop
	// installation records from the tail (§4.8 step 4b), preserving
	// first-seen order for the remainder.
	for i := range doc.Status.Substatus {
		sub := &doc.Status.Substatus[i]
		if sub.Name != SubstatusInstallation {
			continue
		}
		var summary InstallationSummary
		if err := json.Unmarshal([]byte(sub.FormattedMessage.Message), &summary); err != nil {
			continue
		}
		cut := false
		for measure(doc) > InternalLimit && len(summary.Patches) > 1 {
			summary.Patches = appendTombstone(summary.Patches)
			cut = true
			inner, err := json.Marshal(summary)
			if err != nil {
				break
			}
			sub.FormattedMessage.Message = string(inner)
		}
		if !cut {
			continue
		}
		summary.Errors = appendTruncationError(summary.Errors)
		inner, err := json.Marshal(summary)
		if err != nil {
			continue
		}
		sub.FormattedMessage.Message = string(inner)
		markTruncated(sub)
	}
	return doc
}

func shrinkAssessmentPatches(sub *substatus) {
	var summary AssessmentSummary
	if err := json.Unmarshal([]byte(sub.FormattedMessage.Message), &summary); err != nil {
		return
	}
	cut := false
	for len(summary.Patches) > MinAssessmentPatchesRetained {
		summary.Patches = appendTombstone(summary.Patches)
		cut = true
	}
	if !cut {
		return
	}
	summary.Errors = appendTruncationError(summary.Errors)
	inner, err := json.Marshal(summary)
	if err != nil {
		return
	}
	sub.FormattedMessage.Message = string(inner)
	markTruncated(sub)
}

// markTruncated raises a cut substatus to warning (§4.8 step 4c), never
// downgrading one already reporting error.
func markTruncated(sub *substatus) {
	if sub.Status == StatusError {
		return
	}
	sub.Status = StatusWarning
}

// appendTruncationError records, in the substatus's own errors block, that
// its patch list was cut to fit the host-facing size budget (§4.8 steps
// 4d-4e): a TruncationApplied-coded detail is prepended (most-recent-first,
// capped at MaxErrorsRetained, matching operationState.addError's
// convention) and the block's code is bumped off its zero/"success" value.
func appendTruncationError(errs Errors) Errors {
	detail := ErrorDetail{
		Code:    int(patcherrors.TruncationApplied),
		Message: "patch list truncated to fit the host-facing status size budget",
	}
	details := append([]ErrorDetail{detail}, errs.Details...)
	if len(details) > MaxErrorsRetained {
		details = details[:MaxErrorsRetained]
	}
	errs.Details = details
	errs.Code = 1
	if errs.Message == "" {
		errs.Message = fmt.Sprintf("%d error(s) reported.", len(details))
	}
	return errs
}

// measure marshals the full array-of-one document to measure its on-disk
// size; no size-estimation shortcut is taken because correctness here
// matters more than the cost of a second marshal pass.
func measure(doc document) int {
	data, err := marshalArrayOfOne(doc)
	if err != nil {
		return 0
	}
	return len(data)
}

// appendTombstone drops the last real entry of patches (setting aside a
// tombstone already at the tail, so every call removes one more real record)
// and appends a single tombstone record. §4.8 step 4c pins its shape:
// classified Other and NotSelected, matching the original's truncation
// marker exactly.
func appendTombstone(patches []PatchJSON) []PatchJSON {
	if n := len(patches); n > 0 && patches[n-1].PatchID == TruncatedPatchID {
		patches = patches[:n-1]
	}
	if len(patches) > 0 {
		patches = patches[:len(patches)-1]
	}
	return append(patches, PatchJSON{
		PatchID:                TruncatedPatchID,
		Name:                   TruncatedPatchID,
		Classifications:        []string{string(models.ClassificationOther)},
		PatchInstallationState: string(models.StateNotSelected),
	})
}
