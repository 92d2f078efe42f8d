package pkgmanager

import (
	"fmt"

	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// New constructs the Capability adapter for family ("apt", "yum", "tdnf",
// "zypper", "rpm-ostree").
func New(env recorder.Environment, family string) (Capability, error) {
	switch family {
	case "apt":
		return NewApt(env), nil
	case "yum":
		return NewYum(env), nil
	case "tdnf":
		return NewTdnf(env), nil
	case "zypper":
		return NewZypper(env), nil
	case "rpm-ostree":
		return NewRpmOstree(env), nil
	default:
		return nil, fmt.Errorf("pkgmanager: unrecognized family %q", family)
	}
}
