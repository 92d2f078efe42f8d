package main

import "testing"

func TestResolvedRootUsesFlagWhenSet(t *testing.T) {
	old := extensionRoot
	defer func() { extensionRoot = old }()

	extensionRoot = "/opt/extensions/mspatch-1.0"
	got, err := resolvedRoot()
	if err != nil {
		t.Fatalf("resolvedRoot: %v", err)
	}
	if got != "/opt/extensions/mspatch-1.0" {
		t.Fatalf("resolvedRoot() = %q, want the configured flag value", got)
	}
}

func TestResolvedRootFallsBackToWorkingDirectory(t *testing.T) {
	old := extensionRoot
	defer func() { extensionRoot = old }()

	extensionRoot = ""
	got, err := resolvedRoot()
	if err != nil {
		t.Fatalf("resolvedRoot: %v", err)
	}
	if got == "" {
		t.Fatal("resolvedRoot() returned an empty path")
	}
}

func TestResolvedCoreBinaryUsesFlagWhenSet(t *testing.T) {
	old := coreBinaryPath
	defer func() { coreBinaryPath = old }()

	coreBinaryPath = "/opt/extensions/mspatch-1.0/core"
	got, err := resolvedCoreBinary()
	if err != nil {
		t.Fatalf("resolvedCoreBinary: %v", err)
	}
	if got != "/opt/extensions/mspatch-1.0/core" {
		t.Fatalf("resolvedCoreBinary() = %q, want the configured flag value", got)
	}
}

func TestResolvedCoreBinaryDefaultsToSiblingOfSelf(t *testing.T) {
	old := coreBinaryPath
	defer func() { coreBinaryPath = old }()

	coreBinaryPath = ""
	got, err := resolvedCoreBinary()
	if err != nil {
		t.Fatalf("resolvedCoreBinary: %v", err)
	}
	if got == "" {
		t.Fatal("resolvedCoreBinary() returned an empty path")
	}
}
