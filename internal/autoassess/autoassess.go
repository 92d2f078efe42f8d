// Package autoassess implements the auto-assessment timer/service installer
// (§4.7): installing a systemd timer+service pair that re-invokes the
// handler in auto-assessment mode on a cadence, querying whether it is
// active and enabled on boot, and blocking it (best-effort) during disable.
package autoassess

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/unit"
	"go.uber.org/zap"

	"github.com/azure-patch/linux-patch-core/internal/config"
	"github.com/azure-patch/linux-patch-core/internal/recorder"
)

// Manager installs, queries, and blocks the auto-assessment timer.
type Manager struct {
	log *zap.SugaredLogger
	env recorder.Environment
	cfg config.AutoAssess
}

func New(log *zap.SugaredLogger, env recorder.Environment, cfg config.AutoAssess) *Manager {
	return &Manager{log: log, env: env, cfg: cfg}
}

func (m *Manager) timerUnit() string   { return m.cfg.UnitName + ".timer" }
func (m *Manager) serviceUnit() string { return m.cfg.UnitName + ".service" }
func (m *Manager) timerPath() string   { return filepath.Join(m.cfg.UnitDir, m.timerUnit()) }
func (m *Manager) servicePath() string { return filepath.Join(m.cfg.UnitDir, m.serviceUnit()) }

// Install renders and writes the timer+service unit files, then reloads
// systemd and enables the timer so it starts on boot and now.
func (m *Manager) Install(ctx context.Context) error {
	serviceData, err := serialize(unit.NewUnitOption("Unit", "Description", "Azure Linux Patch auto-assessment run"),
		unit.NewUnitOption("Service", "Type", "oneshot"),
		unit.NewUnitOption("Service", "ExecStart", m.cfg.HandlerBinary+" enable --auto-assessment"))
	if err != nil {
		return fmt.Errorf("autoassess: install: rendering %s: %w", m.serviceUnit(), err)
	}
	if err := m.env.WriteFile(m.servicePath(), serviceData); err != nil {
		return fmt.Errorf("autoassess: install: writing %s: %w", m.servicePath(), err)
	}

	cadence := time.Duration(m.cfg.CadenceHours) * time.Hour
	timerData, err := serialize(unit.NewUnitOption("Unit", "Description", "Periodic trigger for Azure Linux Patch auto-assessment"),
		unit.NewUnitOption("Timer", "OnBootSec", cadence.String()),
		unit.NewUnitOption("Timer", "OnUnitActiveSec", cadence.String()),
		unit.NewUnitOption("Timer", "Unit", m.serviceUnit()),
		unit.NewUnitOption("Install", "WantedBy", "timers.target"))
	if err != nil {
		return fmt.Errorf("autoassess: install: rendering %s: %w", m.timerUnit(), err)
	}
	if err := m.env.WriteFile(m.timerPath(), timerData); err != nil {
		return fmt.Errorf("autoassess: install: writing %s: %w", m.timerPath(), err)
	}

	if _, err := m.env.RunCommand(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("autoassess: install: daemon-reload: %w", err)
	}
	if _, err := m.env.RunCommand(ctx, "systemctl", "enable", "--now", m.timerUnit()); err != nil {
		return fmt.Errorf("autoassess: install: enable: %w", err)
	}
	return nil
}

// Block stops and disables the timer, best-effort: the caller (disable
// subcommand) logs but does not fail on error.
func (m *Manager) Block(ctx context.Context) error {
	if _, err := m.env.RunCommand(ctx, "systemctl", "stop", m.timerUnit()); err != nil {
		return fmt.Errorf("autoassess: block: stop: %w", err)
	}
	if _, err := m.env.RunCommand(ctx, "systemctl", "disable", m.timerUnit()); err != nil {
		return fmt.Errorf("autoassess: block: disable: %w", err)
	}
	return nil
}

// State reports whether the timer is currently active and enabled on boot.
type State struct {
	Active        bool
	EnabledOnBoot bool
}

// Query reads back the timer's activation and boot-enablement state via
// systemctl, the same way an operator would check it by hand.
func (m *Manager) Query(ctx context.Context) (State, error) {
	active, err := m.isActive(ctx)
	if err != nil {
		return State{}, err
	}
	enabled, err := m.isEnabled(ctx)
	if err != nil {
		return State{}, err
	}
	return State{Active: active, EnabledOnBoot: enabled}, nil
}

func (m *Manager) isActive(ctx context.Context) (bool, error) {
	res, err := m.env.RunCommand(ctx, "systemctl", "is-active", m.timerUnit())
	if err != nil {
		return false, fmt.Errorf("autoassess: query: is-active: %w", err)
	}
	return strings.TrimSpace(res.Stdout) == "active", nil
}

func (m *Manager) isEnabled(ctx context.Context) (bool, error) {
	res, err := m.env.RunCommand(ctx, "systemctl", "is-enabled", m.timerUnit())
	if err != nil {
		return false, fmt.Errorf("autoassess: query: is-enabled: %w", err)
	}
	return strings.TrimSpace(res.Stdout) == "enabled", nil
}

// serialize renders opts the way systemd expects a unit file on disk, via
// coreos/go-systemd/v22/unit's writer rather than a hand-rolled template.
func serialize(opts ...*unit.UnitOption) ([]byte, error) {
	r := unit.Serialize(opts)
	return io.ReadAll(r)
}
