package pkgmanager

import (
	"context"
	"fmt"
	"strings"

	"github.com/azure-patch/linux-patch-core/internal/models"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

// Yum implements Capability for the YUM/TDNF family. binary is the
// underlying executable name ("yum" from NewYum, or "tdnf" from NewTdnf) so
// the same adapter serves both CLI-compatible tools.
type Yum struct {
	env    recorder.Environment
	binary string
}

func NewYum(env recorder.Environment) *Yum  { return &Yum{env: env, binary: "yum"} }
func NewTdnf(env recorder.Environment) *Yum { return &Yum{env: env, binary: "tdnf"} }

func (y *Yum) Family() string {
	if y.binary == "tdnf" {
		return "tdnf"
	}
	return "yum"
}

func (y *Yum) run(ctx context.Context, args ...string) (recorder.CommandResult, error) {
	res, err := y.env.RunCommand(ctx, y.binary, args...)
	if err != nil {
		return res, err
	}
	if ClassifyYum(res.ExitCode) == DispositionFatal {
		return res, patcherrors.NewPackageManagerFailure(y.Family(), res.ExitCode, res.Stdout+res.Stderr, nil)
	}
	return res, nil
}

func (y *Yum) RefreshRepository(ctx context.Context) error {
	_, err := y.run(ctx, "clean", "expire-cache")
	return err
}

func (y *Yum) listUpdates(ctx context.Context, extraArgs ...string) ([]string, []string, error) {
	args := append([]string{"check-update"}, extraArgs...)
	res, err := y.run(ctx, args...)
	if err != nil {
		return nil, nil, err
	}
	var names, versions []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasPrefix(line, "Obsoleting") {
			continue
		}
		names = append(names, baseName(fields[0]))
		versions = append(versions, fields[1])
	}
	return names, versions, nil
}

// baseName strips a YUM multilib arch suffix ("pkg.x86_64" -> "pkg").
func baseName(nameArch string) string {
	if i := strings.LastIndex(nameArch, "."); i > 0 {
		return nameArch[:i]
	}
	return nameArch
}

// Arch returns the arch suffix of a YUM-style "pkg.arch" identifier, or ""
// if there is none.
func Arch(nameArch string) string {
	if i := strings.LastIndex(nameArch, "."); i > 0 {
		return nameArch[i+1:]
	}
	return ""
}

func (y *Yum) GetAllUpdates(ctx context.Context, cached bool) ([]string, []string, error) {
	return y.listUpdates(ctx)
}

func (y *Yum) GetSecurityUpdates(ctx context.Context) ([]string, []string, error) {
	return y.listUpdates(ctx, "--security")
}

func (y *Yum) GetOtherUpdates(ctx context.Context) ([]string, []string, error) {
	all, allV, err := y.GetAllUpdates(ctx, true)
	if err != nil {
		return nil, nil, err
	}
	sec, _, err := y.GetSecurityUpdates(ctx)
	if err != nil {
		// classification-unsupported (e.g. CentOS without plugin data) is
		// non-fatal for assessment (§7): fall back to treating nothing as
		// security rather than failing the whole query.
		sec = nil
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

func (y *Yum) GetAllAvailableVersions(ctx context.Context, name string) ([]string, error) {
	res, err := y.run(ctx, "list", "available", name)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && baseName(fields[0]) == name {
			versions = append(versions, fields[1])
		}
	}
	return versions, nil
}

func (y *Yum) IsPackageVersionInstalled(ctx context.Context, name, version string) (bool, error) {
	res, err := y.env.RunCommand(ctx, "rpm", "-q", name)
	if err != nil {
		return false, nil
	}
	return strings.Contains(res.Stdout, version), nil
}

func (y *Yum) GetDependents(ctx context.Context, name string) ([]string, error) {
	res, err := y.env.RunCommand(ctx, "repoquery", "--whatrequires", name)
	if err != nil {
		return nil, err
	}
	var deps []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			deps = append(deps, baseName(line))
		}
	}
	return deps, nil
}

// ResolveMultilibSiblings returns, for each included package name, any
// sibling same-product-different-arch package present in allAvailable
// (§4.3: "For YUM-family multilib: include sibling arch packages from
// Included whose product-name-without-arch matches").
func ResolveMultilibSiblings(included []string, allAvailable []string) []string {
	includedBase := make(map[string]struct{}, len(included))
	includedFull := make(map[string]struct{}, len(included))
	for _, n := range included {
		includedBase[baseName(n)] = struct{}{}
		includedFull[n] = struct{}{}
	}
	var siblings []string
	for _, n := range allAvailable {
		if _, already := includedFull[n]; already {
			continue
		}
		if _, matches := includedBase[baseName(n)]; matches {
			siblings = append(siblings, n)
		}
	}
	return siblings
}

func (y *Yum) InstallUpdateAndDependencies(ctx context.Context, names, versions []string, simulate bool) ([]InstallOutcome, RepeatRequired, error) {
	args := []string{"install", "-y"}
	if simulate {
		args = append(args, "--assumeno")
	}
	for i, n := range names {
		args = append(args, fmt.Sprintf("%s-%s", n, versions[i]))
	}
	res, err := y.env.RunCommand(ctx, y.binary, args...)
	if err != nil {
		return nil, false, err
	}
	combined := strings.ToLower(res.Stdout + res.Stderr)

	outcomes := make([]InstallOutcome, 0, len(names))
	for _, n := range names {
		state := models.StateFailed
		switch {
		case ClassifyYum(res.ExitCode) == DispositionOK:
			state = models.StateInstalled
		case strings.Contains(combined, "nothing to do"):
			state = models.StateInstalled
		case strings.Contains(combined, "obsoleting"), strings.Contains(combined, "replacing"):
			state = models.StateInstalled
		}
		outcomes = append(outcomes, InstallOutcome{Name: n, State: state})
	}
	return outcomes, false, nil
}

func (y *Yum) GetCurrentAutoOsPatchState(ctx context.Context) (AutoOSPatchState, error) {
	data, found, err := y.env.ReadFile("/etc/yum/yum-cron.conf")
	if err != nil {
		return AutoOSPatchUnknown, err
	}
	if !found {
		return AutoOSPatchUnknown, nil
	}
	if strings.Contains(string(data), "apply_updates = yes") {
		return AutoOSPatchEnabled, nil
	}
	return AutoOSPatchDisabled, nil
}

func (y *Yum) DisableAutoOsUpdate(ctx context.Context) error {
	const path = "/etc/yum/yum-cron.conf"
	data, found, err := y.env.ReadFile(path)
	if err != nil {
		return err
	}
	if found {
		if err := y.env.WriteFile(path+".bak", data); err != nil {
			return err
		}
		disabled := strings.ReplaceAll(string(data), "apply_updates = yes", "apply_updates = no")
		return y.env.WriteFile(path, []byte(disabled))
	}
	return nil
}

func (y *Yum) IsRebootPending(ctx context.Context) (bool, error) {
	res, err := y.env.RunCommand(ctx, "needs-restarting", "-r")
	if err != nil {
		return false, nil
	}
	return res.ExitCode != 0, nil
}
