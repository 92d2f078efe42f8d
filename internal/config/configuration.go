package config

// Configuration holds the ambient, non-host-agent-owned settings for both
// binaries: filesystem paths, retry/backoff tunables, wait/heartbeat
// timeouts, and logging/diagnostics knobs. It is loaded by viper (env vars
// under the MSPATCH_ prefix) layered on top of struct-tag defaults, and
// validated before use.
type Configuration struct {
	Paths       Paths       `debugmap:"visible"`
	Retry       Retry       `debugmap:"visible"`
	Timing      Timing      `debugmap:"visible"`
	Logging     Logging     `debugmap:"visible"`
	Diagnostics Diagnostics `debugmap:"visible"`
	AutoAssess  AutoAssess  `debugmap:"visible"`
}

// Paths locates the on-disk extension layout (§6.3).
type Paths struct {
	ExtensionRoot string `mapstructure:"extension_root" validate:"required"`
	ConfigFolder  string `mapstructure:"config_folder" default:"config"`
	StatusFolder  string `mapstructure:"status_folder" default:"status"`
	LogFolder     string `mapstructure:"log_folder" default:"log"`
	EventsFolder  string `mapstructure:"events_folder" default:"events"`
}

// Retry tunes package-manager and repository-refresh retry behavior.
type Retry struct {
	MaxInstallationRetryCount int `mapstructure:"max_installation_retry_count" default:"2" validate:"gte=0"`
	ReconciliationEvery       int `mapstructure:"reconciliation_every" default:"10" validate:"gt=0"`
	MaxRepeatOperationCount   int `mapstructure:"max_repeat_operation_count" default:"2" validate:"gte=0"`
	ZypperLockTimeoutSeconds  int `mapstructure:"zypper_lock_timeout_seconds" default:"5" validate:"gt=0"`
}

// Timing holds the handler's wait/heartbeat window (§4.1) and the installer's
// maintenance-window reboot reserve (§4.5).
type Timing struct {
	EnableWaitMinutes         int `mapstructure:"enable_wait_minutes" default:"30" validate:"gt=0"`
	HeartbeatStaleMinutes     int `mapstructure:"heartbeat_stale_minutes" default:"10" validate:"gt=0"`
	RebootReserveMinutes      int `mapstructure:"reboot_reserve_minutes" default:"15" validate:"gte=0"`
	MinInstallSlotMinutes     int `mapstructure:"min_install_slot_minutes" default:"1" validate:"gt=0"`
}

// Logging controls the zap sub-logger setup shared by both binaries.
type Logging struct {
	Level     string `mapstructure:"level" default:"info" validate:"oneof=debug info warn error"`
	Format    string `mapstructure:"format" default:"json" validate:"oneof=json console"`
	ToStdout  bool   `mapstructure:"to_stdout" default:"false"`
}

// Diagnostics controls the optional loopback gin server (§A.6).
type Diagnostics struct {
	Enabled               bool   `mapstructure:"enabled" default:"false"`
	Address               string `mapstructure:"address" default:"127.0.0.1:8732"`
	MetricsRefreshSeconds int    `mapstructure:"metrics_refresh_seconds" default:"15" validate:"gt=0"`
}

// AutoAssess controls the systemd timer/service pair that re-invokes the
// handler in auto-assessment mode (§4.7).
type AutoAssess struct {
	UnitDir       string `mapstructure:"unit_dir" default:"/etc/systemd/system"`
	UnitName      string `mapstructure:"unit_name" default:"azure-patch-core-auto-assessment"`
	CadenceHours  int    `mapstructure:"cadence_hours" default:"3" validate:"gt=0"`
	HandlerBinary string `mapstructure:"handler_binary" default:"/var/lib/waagent/Microsoft.CPlat.Core.LinuxPatchExtension/handler"`
}
