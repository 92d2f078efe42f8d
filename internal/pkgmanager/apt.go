package pkgmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// Apt implements Capability for Debian/Ubuntu's apt + dpkg stack.
type Apt struct {
	env recorder.Environment
}

func NewApt(env recorder.Environment) *Apt {
	return &Apt{env: env}
}

func (a *Apt) Family() string { return "apt" }

func (a *Apt) run(ctx context.Context, args ...string) (recorder.CommandResult, error) {
	res, err := a.env.RunCommand(ctx, "apt-get", args...)
	if err != nil {
		return res, err
	}
	combined := res.Stdout + res.Stderr
	switch ClassifyApt(res.ExitCode, combined) {
	case DispositionManagerUnhealthy:
		return res, patcherrors.Wrap(patcherrors.PackageManagerFailure,
			"dpkg was interrupted and must be repaired manually", nil)
	case DispositionFatal, DispositionRetryable:
		if res.ExitCode != 0 {
			return res, patcherrors.NewPackageManagerFailure("apt", res.ExitCode, combined, nil)
		}
	}
	return res, nil
}

func (a *Apt) RefreshRepository(ctx context.Context) error {
	_, err := a.run(ctx, "update")
	return err
}

func (a *Apt) GetAllUpdates(ctx context.Context, cached bool) ([]string, []string, error) {
	res, err := a.env.RunCommand(ctx, "apt-get", "--just-print", "upgrade")
	if err != nil {
		return nil, nil, err
	}
	return parseAptJustPrint(res.Stdout)
}

func (a *Apt) GetSecurityUpdates(ctx context.Context) ([]string, []string, error) {
	names, versions, err := a.GetAllUpdates(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	var sn, sv []string
	for i, n := range names {
		if strings.Contains(n, "-security") || strings.Contains(versions[i], "security") {
			sn = append(sn, n)
			sv = append(sv, versions[i])
		}
	}
	return sn, sv, nil
}

// aptEsmMarker is the line apt-get prints ahead of the list of packages
// gated behind an Ubuntu Pro Extended Security Maintenance contract.
const aptEsmMarker = "The following packages could receive security updates with UA Infra: ESM service enabled:"

// GetSecurityESMUpdates returns the names of available updates that require
// an active Ubuntu Pro ESM contract to install, parsed from the same
// --just-print upgrade output as GetAllUpdates.
func (a *Apt) GetSecurityESMUpdates(ctx context.Context) ([]string, error) {
	res, err := a.env.RunCommand(ctx, "apt-get", "--just-print", "upgrade")
	if err != nil {
		return nil, err
	}
	return parseAptEsmMarker(res.Stdout), nil
}

func parseAptEsmMarker(output string) []string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		if !strings.Contains(line, aptEsmMarker) {
			continue
		}
		if i+1 >= len(lines) {
			return nil
		}
		return strings.Fields(lines[i+1])
	}
	return nil
}

func (a *Apt) GetOtherUpdates(ctx context.Context) ([]string, []string, error) {
	allNames, allVersions, err := a.GetAllUpdates(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	secNames, _, err := a.GetSecurityUpdates(ctx)
	if err != nil {
		return nil, nil, err
	}
	secSet := make(map[string]struct{}, len(secNames))
	for _, n := range secNames {
		secSet[n] = struct{}{}
	}
	var on, ov []string
	for i, n := range allNames {
		if _, isSec := secSet[n]; !isSec {
			on = append(on, n)
			ov = append(ov, allVersions[i])
		}
	}
	return on, ov, nil
}

func (a *Apt) GetAllAvailableVersions(ctx context.Context, name string) ([]string, error) {
	res, err := a.env.RunCommand(ctx, "apt-cache", "madison", name)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Split(line, "|")
		if len(fields) >= 2 {
			versions = append(versions, strings.TrimSpace(fields[1]))
		}
	}
	return versions, nil
}

func (a *Apt) IsPackageVersionInstalled(ctx context.Context, name, version string) (bool, error) {
	res, err := a.env.RunCommand(ctx, "dpkg-query", "-W", "-f=${Version}", name)
	if err != nil {
		return false, nil
	}
	return strings.TrimSpace(res.Stdout) == version, nil
}

func (a *Apt) GetDependents(ctx context.Context, name string) ([]string, error) {
	res, err := a.env.RunCommand(ctx, "apt-cache", "rdepends", "--installed", name)
	if err != nil {
		return nil, err
	}
	var deps []string
	for _, line := range strings.Split(res.Stdout, "\n")[1:] {
		line = strings.TrimSpace(line)
		if line != "" {
			deps = append(deps, line)
		}
	}
	return deps, nil
}

func (a *Apt) InstallUpdateAndDependencies(ctx context.Context, names, versions []string, simulate bool) ([]InstallOutcome, RepeatRequired, error) {
	args := []string{"install", "-y"}
	if simulate {
		args = append(args, "--just-print")
	}
	for i, n := range names {
		args = append(args, fmt.Sprintf("%s=%s", n, versions[i]))
	}
	res, err := a.env.RunCommand(ctx, "apt-get", args...)
	if err != nil {
		return nil, false, err
	}

	combined := strings.ToLower(res.Stdout + res.Stderr)
	outcomes := make([]InstallOutcome, 0, len(names))
	for _, n := range names {
		state := models.StateFailed
		switch {
		case res.ExitCode == 0:
			state = models.StateInstalled
		case strings.Contains(combined, "nothing to do"):
			state = models.StateInstalled
		}
		outcomes = append(outcomes, InstallOutcome{Name: n, State: state})
	}
	return outcomes, false, nil
}

func (a *Apt) GetCurrentAutoOsPatchState(ctx context.Context) (AutoOSPatchState, error) {
	data, found, err := a.env.ReadFile("/etc/apt/apt.conf.d/20auto-upgrades")
	if err != nil {
		return AutoOSPatchUnknown, err
	}
	if !found {
		return AutoOSPatchUnknown, nil
	}
	if strings.Contains(string(data), `APT::Periodic::Unattended-Upgrade "1"`) {
		return AutoOSPatchEnabled, nil
	}
	return AutoOSPatchDisabled, nil
}

func (a *Apt) DisableAutoOsUpdate(ctx context.Context) error {
	const path = "/etc/apt/apt.conf.d/20auto-upgrades"
	data, found, err := a.env.ReadFile(path)
	if err != nil {
		return err
	}
	if found {
		if err := a.env.WriteFile(path+".bak", data); err != nil {
			return err
		}
	}
	disabled := "APT::Periodic::Update-Package-Lists \"0\";\nAPT::Periodic::Unattended-Upgrade \"0\";\n"
	return a.env.WriteFile(path, []byte(disabled))
}

func (a *Apt) IsRebootPending(ctx context.Context) (bool, error) {
	_, found, err := a.env.Stat("/var/run/reboot-required")
	if err != nil {
		return false, err
	}
	return found, nil
}

// parseAptJustPrint extracts package names/versions from `apt-get
// --just-print upgrade` "Inst <name> [<old>] (<new> ...)" lines.
func parseAptJustPrint(output string) ([]string, []string, error) {
	var names, versions []string
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "Inst ") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		name := fields[1]
		version := strings.Trim(fields[3], "()")
		names = append(names, name)
		versions = append(versions, version)
	}
	return names, versions, nil
}
