package pkgmanager_test

import (
	"testing"

	"github.com/azure-patch/linux-patch-core/internal/pkgmanager"
)

func TestClassifyZypper(t *testing.T) {
	cases := map[int]pkgmanager.Disposition{
		0:   pkgmanager.DispositionOK,
		103: pkgmanager.DispositionRepeatOperation,
		102: pkgmanager.DispositionRebootRequired,
		7:   pkgmanager.DispositionRetryable,
		6:   pkgmanager.DispositionRetryable,
		8:   pkgmanager.DispositionRetryable,
		1:   pkgmanager.DispositionFatal,
	}
	for code, want := range cases {
		if got := pkgmanager.ClassifyZypper(code); got != want {
			t.Errorf("ClassifyZypper(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestClassifyYum(t *testing.T) {
	for _, code := range []int{0, 1, 100} {
		if got := pkgmanager.ClassifyYum(code); got != pkgmanager.DispositionOK {
			t.Errorf("ClassifyYum(%d) = %v, want DispositionOK", code, got)
		}
	}
	if got := pkgmanager.ClassifyYum(2); got != pkgmanager.DispositionFatal {
		t.Errorf("ClassifyYum(2) = %v, want DispositionFatal", got)
	}
}

func TestClassifyApt(t *testing.T) {
	if got := pkgmanager.ClassifyApt(0, ""); got != pkgmanager.DispositionOK {
		t.Errorf("ClassifyApt(0) = %v, want DispositionOK", got)
	}
	if got := pkgmanager.ClassifyApt(1, "E: dpkg was interrupted, you must manually run 'dpkg --configure -a'"); got != pkgmanager.DispositionManagerUnhealthy {
		t.Errorf("ClassifyApt(interrupted) = %v, want DispositionManagerUnhealthy", got)
	}
	if got := pkgmanager.ClassifyApt(100, "some transient failure"); got != pkgmanager.DispositionRetryable {
		t.Errorf("ClassifyApt(100) = %v, want DispositionRetryable", got)
	}
}

func TestResolveMultilibSiblings(t *testing.T) {
	included := []string{"glibc.x86_64"}
	available := []string{"glibc.x86_64", "glibc.i686", "openssl.x86_64"}
	got := pkgmanager.ResolveMultilibSiblings(included, available)
	if len(got) != 1 || got[0] != "glibc.i686" {
		t.Errorf("ResolveMultilibSiblings() = %v, want [glibc.i686]", got)
	}
}

func TestArch(t *testing.T) {
	if got := pkgmanager.Arch("glibc.x86_64"); got != "x86_64" {
		t.Errorf("Arch(glibc.x86_64) = %q, want x86_64", got)
	}
	if got := pkgmanager.Arch("noarchsuffix"); got != "" {
		t.Errorf("Arch(noarchsuffix) = %q, want empty", got)
	}
}
