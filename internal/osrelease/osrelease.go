// Package osrelease identifies the host's package-manager family and
// composes the OS identity string used in patch id composition (§3.5), by
// reading /etc/os-release the way a running extension would at startup.
package osrelease

import (
	"strconv"
	"strings"

	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

const path = "/etc/os-release"

// Identity names a detected OS: the pkgmanager family it maps to and the
// "<name>_<version>" string recorded on every Package (§3.5).
type Identity struct {
	Family         string
	NameAndVersion string
}

// idToFamily maps the os-release ID (and ID_LIKE fallback) to the
// pkgmanager family name recognized by pkgmanager.New.
var idToFamily = map[string]string{
	"ubuntu":     "apt",
	"debian":     "apt",
	"rhel":       "yum",
	"centos":     "yum",
	"almalinux":  "yum",
	"rocky":      "yum",
	"fedora":     "tdnf",
	"mariner":    "tdnf",
	"azurelinux": "tdnf",
	"sles":       "zypper",
	"sles_sap":   "zypper",
	"opensuse":   "zypper",
}

// Detect reads /etc/os-release via env and resolves an Identity. A family
// that cannot be mapped is reported as an error naming the unrecognized ID.
func Detect(env recorder.Environment) (Identity, error) {
	data, found, err := env.ReadFile(path)
	if err != nil {
		return Identity{}, err
	}
	fields := map[string]string{}
	if found {
		fields = parse(string(data))
	}

	id := fields["ID"]
	family, ok := idToFamily[id]
	if !ok {
		for _, like := range strings.Fields(fields["ID_LIKE"]) {
			if f, ok := idToFamily[like]; ok {
				family = f
				ok = true
				break
			}
		}
	}
	if family == "" {
		return Identity{}, unrecognizedFamilyError(id)
	}

	name := fields["NAME"]
	if name == "" {
		name = id
	}
	version := fields["VERSION_ID"]

	return Identity{
		Family:         family,
		NameAndVersion: strings.TrimSpace(name) + "_" + strings.TrimSpace(version),
	}, nil
}

// rpmOstreeOverride reselects family "rpm-ostree" when the host is an
// image-based variant (detected by the presence of an ostree marker file),
// overriding whatever family the ID/ID_LIKE match would otherwise pick.
func rpmOstreeOverride(env recorder.Environment, family string) string {
	if _, found, _ := env.ReadFile("/run/ostree-booted"); found {
		return "rpm-ostree"
	}
	return family
}

// DetectWithOstreeOverride wraps Detect with the rpm-ostree image-variant
// override, the form pkgmanager selection actually uses.
func DetectWithOstreeOverride(env recorder.Environment) (Identity, error) {
	id, err := Detect(env)
	if err != nil {
		return Identity{}, err
	}
	id.Family = rpmOstreeOverride(env, id.Family)
	return id, nil
}

func parse(data string) map[string]string {
	fields := map[string]string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if unquoted, err := strconv.Unquote(value); err == nil {
			value = unquoted
		} else {
			value = strings.Trim(value, `"'`)
		}
		fields[strings.TrimSpace(key)] = value
	}
	return fields
}

type unrecognizedFamilyError string

func (e unrecognizedFamilyError) Error() string {
	return "osrelease: unrecognized or missing os-release ID " + strconv.Quote(string(e))
}
