package config

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// RuntimeSettings is the single sequenced configuration document the host
// agent deposits as "<N>.settings". It is parsed directly from JSON because
// its schema is host-agent-owned.
type RuntimeSettings struct {
	Operation                             models.Operation         `json:"operation" validate:"required,oneof=Assessment Installation ConfigurePatching NoOperation"`
	ActivityID                            string                   `json:"activityId" validate:"required"`
	StartTime                             string                   `json:"startTime" validate:"required"`
	MaintenanceRunID                      string                   `json:"maintenanceRunId"`
	HealthStoreID                         string                   `json:"healthStoreId"`
	MaintenanceWindowMinutes              int                      `json:"maintenanceWindow" validate:"gte=0"`
	ClassificationsToIncludeInPatchOperation []models.Classification `json:"classificationsToIncludeInPatchOperation"`
	PatchesToIncludeInInstallation        []string                 `json:"patchesToIncludeInInstallation"`
	PatchesToExcludeFromInstallation      []string                 `json:"patchesToExcludeFromInstallation"`
	RebootSetting                         models.RebootSetting     `json:"rebootSetting" validate:"omitempty,oneof=Never IfRequired Always"`
	PatchMode                             models.PatchMode         `json:"patchMode" validate:"omitempty"`
	AssessmentMode                        models.PatchMode         `json:"assessmentMode" validate:"omitempty"`
	AcceptPackageEula                     bool                     `json:"acceptPackageEula"`
}

var validate = validator.New()

// ParseRuntimeSettings decodes and validates a "<N>.settings" document.
func ParseRuntimeSettings(data []byte) (*RuntimeSettings, error) {
	var rs RuntimeSettings
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, patcherrors.NewConfigInvalid("malformed runtime settings document", err)
	}
	if err := validate.Struct(&rs); err != nil {
		return nil, patcherrors.NewConfigInvalid("runtime settings failed validation", err)
	}
	if invalid := invalidClassificationCombination(rs.ClassificationsToIncludeInPatchOperation); invalid {
		return nil, patcherrors.NewConfigInvalid(
			fmt.Sprintf("invalid classification combination: %v", rs.ClassificationsToIncludeInPatchOperation), nil)
	}
	return &rs, nil
}

// invalidClassificationCombination rejects selecting the Unclassified
// sentinel together with any real classification.
func invalidClassificationCombination(cs []models.Classification) bool {
	hasUnclassified := false
	hasReal := false
	for _, c := range cs {
		if c == models.ClassificationUnclassified {
			hasUnclassified = true
		} else {
			hasReal = true
		}
	}
	return hasUnclassified && hasReal
}
