package config

//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration.go . Configuration Paths Retry Timing Logging Diagnostics
