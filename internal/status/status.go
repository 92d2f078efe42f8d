// Package status composes and writes the StatusFile (§3.4, §4.8, §6.4): a
// single-element JSON array reporting the current operation's progress to
// the host agent, with a bounded host-facing size and an unbounded
// companion "complete" file for diagnostics.
package status

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// Budget constants from §4.8.
const (
	AgentLimit                   = 131072
	InternalLimit                = 129024
	MinAssessmentPatchesRetained = 5
	ErrorMsgLimit                = 128
	MaxErrorsRetained            = 5
)

// TruncatedPatchID is the sentinel patchId appended as a tombstone record
// when a package list had to be cut to fit the host-facing budget.
const TruncatedPatchID = "Truncated_patch_list_id"

// Status is the top-level status.status field.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusError         Status = "error"
	StatusTransitioning Status = "transitioning"
	StatusWarning       Status = "warning"
)

// SubstatusName names one of the four substatus kinds (§6.4).
type SubstatusName string

const (
	SubstatusAssessment        SubstatusName = "PatchAssessmentSummary"
	SubstatusInstallation      SubstatusName = "PatchInstallationSummary"
	SubstatusConfigurePatching SubstatusName = "ConfigurePatchingSummary"
	SubstatusHealthStore       SubstatusName = "PatchMetadataForHealthStore"
)

// Errors is the errors block embedded in each substatus message.
type Errors struct {
	Code    int           `json:"code"`
	Details []ErrorDetail `json:"details"`
	Message string        `json:"message"`
}

// ErrorDetail is one entry in Errors.Details, kept most-recent-first.
type ErrorDetail struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// AssessmentSummary is the nested-JSON payload for PatchAssessmentSummary.
type AssessmentSummary struct {
	ActivityID                    string           `json:"assessmentActivityId"`
	RebootPending                 bool             `json:"rebootPending"`
	CriticalAndSecurityPatchCount int              `json:"criticalAndSecurityPatchCount"`
	OtherPatchCount                int              `json:"otherPatchCount"`
	Patches                       []PatchJSON      `json:"patches"`
	StartTime                     string           `json:"startTime"`
	LastModifiedTime              string           `json:"lastModifiedTime"`
	StartedBy                     string           `json:"startedBy"`
	Errors                        Errors           `json:"errors"`
}

// InstallationSummary is the nested-JSON payload for PatchInstallationSummary.
type InstallationSummary struct {
	ActivityID              string      `json:"installationActivityId"`
	RebootStatus             string      `json:"rebootStatus"`
	MaintenanceWindowExceeded bool        `json:"maintenanceWindowExceeded"`
	NotSelectedPatchCount    int         `json:"notSelectedPatchCount"`
	ExcludedPatchCount       int         `json:"excludedPatchCount"`
	PendingPatchCount        int         `json:"pendingPatchCount"`
	InstalledPatchCount      int         `json:"installedPatchCount"`
	FailedPatchCount         int         `json:"failedPatchCount"`
	Patches                  []PatchJSON `json:"patches"`
	StartTime                string      `json:"startTime"`
	LastModifiedTime         string      `json:"lastModifiedTime"`
	MaintenanceRunID         string      `json:"maintenanceRunId,omitempty"`
	Errors                   Errors      `json:"errors"`
}

// ConfigurePatchingSummary is the nested-JSON payload for
// ConfigurePatchingSummary.
type ConfigurePatchingSummary struct {
	AutomaticOSPatchState string `json:"automaticOSPatchState"`
	AutoAssessmentStatus  struct {
		AutoAssessmentState string `json:"autoAssessmentState"`
	} `json:"autoAssessmentStatus"`
}

// HealthStoreSummary is the nested-JSON payload for PatchMetadataForHealthStore.
type HealthStoreSummary struct {
	PatchVersion           string `json:"patchVersion"`
	ShouldReportToHealthStore bool `json:"shouldReportToHealthStore"`
}

// PatchJSON is the wire shape of a package record within a summary's
// patches array.
type PatchJSON struct {
	PatchID                string   `json:"patchId"`
	Name                   string   `json:"name"`
	Version                string   `json:"version"`
	Classifications        []string `json:"classifications"`
	PatchInstallationState string   `json:"patchInstallationState,omitempty"`
}

func toPatchJSON(p models.Package) PatchJSON {
	classifications := make([]string, 0, len(p.Classifications))
	for _, c := range p.Classifications {
		classifications = append(classifications, string(c))
	}
	return PatchJSON{
		PatchID:                p.PatchID(),
		Name:                   p.Name,
		Version:                p.Version,
		Classifications:        classifications,
		PatchInstallationState: string(p.State),
	}
}

// formattedMessage is the {lang, message} wrapper; message is itself a
// JSON-encoded string (double-encoded per §6.4).
type formattedMessage struct {
	Lang    string `json:"lang"`
	Message string `json:"message"`
}

type substatus struct {
	Name             SubstatusName     `json:"name"`
	Status           Status            `json:"status"`
	Code             int               `json:"code"`
	FormattedMessage formattedMessage  `json:"formattedMessage"`
}

type topStatus struct {
	Name             string            `json:"name"`
	Operation        models.Operation  `json:"operation"`
	Status           Status            `json:"status"`
	Code             int               `json:"code"`
	FormattedMessage formattedMessage  `json:"formattedMessage"`
	Substatus        []substatus       `json:"substatus"`
}

type document struct {
	Version      float64   `json:"version"`
	TimestampUTC string    `json:"timestampUTC"`
	Status       topStatus `json:"status"`
}

// statusName is the fixed top-level status.name field.
const statusName = "Azure Patch Management"

func marshalSubstatus(name SubstatusName, status Status, code int, payload any) (substatus, error) {
	inner, err := json.Marshal(payload)
	if err != nil {
		return substatus{}, err
	}
	return substatus{
		Name:   name,
		Status: status,
		Code:   code,
		FormattedMessage: formattedMessage{
			Lang:    "en-US",
			Message: string(inner),
		},
	}, nil
}

func newDocument(now time.Time, operation models.Operation, status Status, subs []substatus) document {
	return document{
		Version:      1.0,
		TimestampUTC: now.UTC().Format(time.RFC3339),
		Status: topStatus{
			Name:      statusName,
			Operation: operation,
			Status:    status,
			Code:      0,
			FormattedMessage: formattedMessage{
				Lang:    "en-US",
				Message: "",
			},
			Substatus: subs,
		},
	}
}

func marshalArrayOfOne(doc document) ([]byte, error) {
	return json.Marshal([]document{doc})
}

func writeErr(env recorder.Environment, path string, data []byte) error {
	if err := env.WriteFile(path, data); err != nil {
		return fmt.Errorf("write status file %s: %w", path, err)
	}
	return nil
}
