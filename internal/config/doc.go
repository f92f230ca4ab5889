// Package config handles configuration loading for agentpool.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from AGENTPOOL_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/agentpool/pool.yaml
//  3. ~/.config/agentpool/pool.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${AGENTPOOL_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	database:
//	  path: "/var/lib/agentpool/pool.db"
//
//	auth:
//	  jwt_secret: "${AGENTPOOL_JWT_SECRET}"   # optional, at least 32 bytes
//
//	agents:
//	  file: "agents.toml"        # relative to this file
//	  watch: true                # reload when the file changes
//	  reload_debounce: "250ms"
//	  attempt_window: "5m"       # failed login counting window
//	  attempt_capacity: 10000
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// Durations use time.ParseDuration syntax.
package config
