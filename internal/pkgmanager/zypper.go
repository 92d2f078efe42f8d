package pkgmanager

import (
	"context"
	"strings"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// Zypper implements Capability for SUSE's zypper. Commands run with the
// process environment as it is: neither this adapter nor any caller sets or
// restores zypper's lock-timeout environment variable around these calls,
// and the ZypperLockTimeoutSeconds configuration value is not read.
type Zypper struct {
	env recorder.Environment
}

func NewZypper(env recorder.Environment) *Zypper {
	return &Zypper{env: env}
}

func (z *Zypper) Family() string { return "zypper" }

func (z *Zypper) run(ctx context.Context, args ...string) (recorder.CommandResult, Disposition, error) {
	res, err := z.env.RunCommand(ctx, "zypper", append([]string{"--non-interactive"}, args...)...)
	if err != nil {
		return res, DispositionFatal, err
	}
	disposition := ClassifyZypper(res.ExitCode)
	if disposition == DispositionFatal {
		return res, disposition, patcherrors.NewPackageManagerFailure("zypper", res.ExitCode, res.Stdout+res.Stderr, nil)
	}
	return res, disposition, nil
}

func (z *Zypper) RefreshRepository(ctx context.Context) error {
	_, disposition, err := z.run(ctx, "refresh")
	if disposition == DispositionRetryable {
		return patcherrors.Wrap(patcherrors.PackageManagerFailure, "zypper refresh: retryable (locked or repos missing)", err)
	}
	return err
}

func (z *Zypper) listUpdates(ctx context.Context, category string) ([]string, []string, error) {
	args := []string{"list-updates"}
	if category != "" {
		args = append(args, "--category", category)
	}
	res, _, err := z.run(ctx, args...)
	if err != nil {
		return nil, nil, err
	}
	var names, versions []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) < 5 {
			continue
		}
		names = append(names, strings.TrimSpace(fields[2]))
		versions = append(versions, strings.TrimSpace(fields[4]))
	}
	return names, versions, nil
}

func (z *Zypper) GetAllUpdates(ctx context.Context, cached bool) ([]string, []string, error) {
	return z.listUpdates(ctx, "")
}

func (z *Zypper) GetSecurityUpdates(ctx context.Context) ([]string, []string, error) {
	return z.listUpdates(ctx, "security")
}

func (z *Zypper) GetOtherUpdates(ctx context.Context) ([]string, []string, error) {
	all, allV, err := z.GetAllUpdates(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	sec, _, err := z.GetSecurityUpdates(ctx)
	if err != nil {
		return nil, nil, err
	}
	secSet := make(map[string]struct{}, len(sec))
	for _, n := range sec {
		secSet[n] = struct{}{}
	}
	var on, ov []string
	for i, n := range all {
		if _, isSec := secSet[n]; !isSec {
			on = append(on, n)
			ov = append(ov, allV[i])
		}
	}
	return on, ov, nil
}

func (z *Zypper) GetAllAvailableVersions(ctx context.Context, name string) ([]string, error) {
	res, _, err := z.run(ctx, "search", "-s", name)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) >= 5 && strings.TrimSpace(fields[2]) == name {
			versions = append(versions, strings.TrimSpace(fields[4]))
		}
	}
	return versions, nil
}

func (z *Zypper) IsPackageVersionInstalled(ctx context.Context, name, version string) (bool, error) {
	res, err := z.env.RunCommand(ctx, "rpm", "-q", name)
	if err != nil {
		return false, nil
	}
	return strings.Contains(res.Stdout, version), nil
}

func (z *Zypper) GetDependents(ctx context.Context, name string) ([]string, error) {
	res, _, err := z.run(ctx, "info", "--requires", name)
	if err != nil {
		return nil, err
	}
	var deps []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.Contains(line, ":") {
			deps = append(deps, line)
		}
	}
	return deps, nil
}

// InstallUpdateAndDependencies surfaces RepeatRequired when zypper exits
// 103 (it updated itself mid-transaction) so the installer loop can rerun
// once (§4.3 repeat-operation signaling).
func (z *Zypper) InstallUpdateAndDependencies(ctx context.Context, names, versions []string, simulate bool) ([]InstallOutcome, RepeatRequired, error) {
	args := []string{"update"}
	if simulate {
		args = append(args, "--dry-run")
	}
	args = append(args, names...)
	res, disposition, err := z.run(ctx, args...)

	if disposition == DispositionRepeatOperation {
		return nil, true, nil
	}
	if disposition == DispositionRebootRequired {
		// install succeeded; reboot is a separate concern handled by
		// internal/reboot once the caller re-queries IsRebootPending.
		disposition = DispositionOK
	}
	if err != nil && disposition != DispositionOK {
		return nil, false, err
	}

	combined := strings.ToLower(res.Stdout + res.Stderr)
	outcomes := make([]InstallOutcome, 0, len(names))
	for _, n := range names {
		state := models.StateFailed
		switch {
		case disposition == DispositionOK:
			state = models.StateInstalled
		case strings.Contains(combined, "nothing to do"):
			state = models.StateInstalled
		}
		outcomes = append(outcomes, InstallOutcome{Name: n, State: state})
	}
	return outcomes, false, nil
}

func (z *Zypper) GetCurrentAutoOsPatchState(ctx context.Context) (AutoOSPatchState, error) {
	data, found, err := z.env.ReadFile("/etc/sysconfig/automatic_online_update")
	if err != nil {
		return AutoOSPatchUnknown, err
	}
	if !found {
		return AutoOSPatchUnknown, nil
	}
	if strings.Contains(string(data), `AOU_ENABLE_CRONJOB="true"`) {
		return AutoOSPatchEnabled, nil
	}
	return AutoOSPatchDisabled, nil
}

func (z *Zypper) DisableAutoOsUpdate(ctx context.Context) error {
	const path = "/etc/sysconfig/automatic_online_update"
	data, found, err := z.env.ReadFile(path)
	if err != nil {
		return err
	}
	if found {
		if err := z.env.WriteFile(path+".bak", data); err != nil {
			return err
		}
		disabled := strings.ReplaceAll(string(data), `AOU_ENABLE_CRONJOB="true"`, `AOU_ENABLE_CRONJOB="false"`)
		return z.env.WriteFile(path, []byte(disabled))
	}
	return nil
}

func (z *Zypper) IsRebootPending(ctx context.Context) (bool, error) {
	_, found, err := z.env.Stat("/var/run/reboot-needed")
	if err != nil {
		return false, err
	}
	return found, nil
}
