package osrelease_test

import (
	"testing"
	"time"

	"github.com/azure-patch/linux-patch-core/internal/osrelease"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

func TestDetectUbuntuMapsToApt(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Files: map[string][]byte{
			"/etc/os-release": []byte("ID=ubuntu\nNAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\n"),
		},
	})

	id, err := osrelease.Detect(env)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if id.Family != "apt" {
		t.Errorf("Family = %q, want apt", id.Family)
	}
	if id.NameAndVersion != "Ubuntu_22.04" {
		t.Errorf("NameAndVersion = %q, want Ubuntu_22.04", id.NameAndVersion)
	}
}

func TestDetectFallsBackToIDLike(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Files: map[string][]byte{
			"/etc/os-release": []byte("ID=ol\nID_LIKE=\"rhel centos fedora\"\nNAME=\"Oracle Linux Server\"\nVERSION_ID=\"9.3\"\n"),
		},
	})

	id, err := osrelease.Detect(env)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if id.Family != "yum" {
		t.Errorf("Family = %q, want yum", id.Family)
	}
}

func TestDetectWithOstreeOverrideSelectsRpmOstree(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Files: map[string][]byte{
			"/etc/os-release":   []byte("ID=fedora\nNAME=\"Fedora Linux\"\nVERSION_ID=\"39\"\n"),
			"/run/ostree-booted": []byte(""),
		},
	})

	id, err := osrelease.DetectWithOstreeOverride(env)
	if err != nil {
		t.Fatalf("DetectWithOstreeOverride() error = %v", err)
	}
	if id.Family != "rpm-ostree" {
		t.Errorf("Family = %q, want rpm-ostree", id.Family)
	}
}

func TestDetectUnrecognizedIDReturnsError(t *testing.T) {
	env := recorder.NewReplay(recorder.Fixture{
		Now: time.Now().UTC(),
		Files: map[string][]byte{
			"/etc/os-release": []byte("ID=plan9\n"),
		},
	})

	if _, err := osrelease.Detect(env); err == nil {
		t.Error("Detect() error = nil, want error for unrecognized ID")
	}
}
