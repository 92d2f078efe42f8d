// Package assessment implements the single-pass assessment orchestrator
// (§4.2): query available updates, classify them, and emit the
// AssessmentSummary substatus.
package assessment

import (
	"context"

	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/pkgmanager"
	"github.com/azure-patch/linux-patch-core/internal/status"
)

// OSIdentity names the OS for patch id composition (§3.5).
type OSIdentity struct {
	NameAndVersion string
}

// esmCapability is implemented only by pkgmanager.Apt: the Security-ESM
// classification (§4.2 step 5) has no equivalent on the other families, so
// it is discovered via an optional interface rather than widening
// pkgmanager.Capability.
type esmCapability interface {
	GetSecurityESMUpdates(ctx context.Context) ([]string, error)
}

// Orchestrator runs one assessment pass.
type Orchestrator struct {
	log *zap.SugaredLogger
	pm  pkgmanager.Capability
	os  OSIdentity
}

func New(log *zap.SugaredLogger, pm pkgmanager.Capability, os OSIdentity) *Orchestrator {
	return &Orchestrator{log: log, pm: pm, os: os}
}

// Run executes the assessment pass described by §4.2 and records the
// resulting package list on h. autoAssessment selects startedBy="Platform"
// vs. "User".
func (o *Orchestrator) Run(ctx context.Context, h *status.Handler, autoAssessment bool) error {
	if autoAssessment {
		h.SetStartedByPlatform()
	}

	if err := o.pm.RefreshRepository(ctx); err != nil {
		h.AddAssessmentError(1, "repository refresh failed: "+err.Error())
		return err
	}

	allNames, allVersions, err := o.pm.GetAllUpdates(ctx, true)
	if err != nil {
		h.AddAssessmentError(1, "failed to query available updates: "+err.Error())
		return err
	}

	secNames, _, secErr := o.pm.GetSecurityUpdates(ctx)
	securitySupported := secErr == nil
	if secErr != nil {
		// classification-unsupported is non-fatal for assessment (§7,
		// CentOS-YUM without plugin data): fall back to reporting
		// everything as Other and log a diagnostic.
		o.log.Warnw("security classification unsupported on this package manager; reporting all updates as Other", "err", secErr)
	}
	secSet := make(map[string]struct{}, len(secNames))
	for _, n := range secNames {
		secSet[n] = struct{}{}
	}

	esmSet := make(map[string]struct{})
	if esm, ok := o.pm.(esmCapability); ok {
		names, esmErr := esm.GetSecurityESMUpdates(ctx)
		if esmErr != nil {
			o.log.Warnw("ESM update query failed; affected packages reported without the Security-ESM classification", "err", esmErr)
		}
		for _, n := range names {
			esmSet[n] = struct{}{}
		}
	}

	pkgs := make([]models.Package, 0, len(allNames))
	for i, name := range allNames {
		version := allVersions[i]
		classification := models.ClassificationOther
		if _, isEsm := esmSet[name]; isEsm {
			classification = models.ClassificationSecurityESM
			version = models.UaEsmRequiredVersion
		} else if securitySupported {
			if _, isSec := secSet[name]; isSec {
				classification = models.ClassificationSecurity
			}
		}
		pkgs = append(pkgs, models.Package{
			Name:             name,
			Version:          version,
			OSNameAndVersion: o.os.NameAndVersion,
			Classifications:  []models.Classification{classification},
		})
	}

	h.SetPackageAssessmentStatus(pkgs)
	return nil
}
