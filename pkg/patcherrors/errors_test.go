package patcherrors_test

import (
	"errors"
	"testing"

	"github.com/azure-patch/linux-patch-core/pkg/patcherrors"
)

func TestErrorsAs(t *testing.T) {
	err := patcherrors.NewPackageManagerFailure("zypper", 103, "repeat operation", nil)

	var pmErr *patcherrors.PackageManagerFailureError
	if !errors.As(err, &pmErr) {
		t.Fatalf("expected errors.As to match PackageManagerFailureError")
	}
	if pmErr.ExitCode != 103 {
		t.Errorf("ExitCode = %d, want 103", pmErr.ExitCode)
	}
	if pmErr.Code != patcherrors.PackageManagerFailure {
		t.Errorf("Code = %v, want PackageManagerFailure", pmErr.Code)
	}
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("boom")
	wrapped := patcherrors.Wrap(patcherrors.OperationFailed, "install failed", sentinel)

	if !errors.Is(wrapped, sentinel) {
		t.Fatalf("expected errors.Is to unwrap to sentinel")
	}
}

func TestCodeString(t *testing.T) {
	cases := map[patcherrors.Code]string{
		patcherrors.DefaultError:           "DefaultError",
		patcherrors.OperationFailed:        "OperationFailed",
		patcherrors.PackageManagerFailure:  "PackageManagerFailure",
		patcherrors.UaEsmRequired:          "UaEsmRequired",
		patcherrors.TruncationApplied:      "TruncationApplied",
		patcherrors.ConfigInvalid:          "ConfigInvalid",
		patcherrors.TelemetryNotSupported:  "TelemetryNotSupported",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("Code(%d).String() = %q, want %q", code, got, want)
		}
	}
}
