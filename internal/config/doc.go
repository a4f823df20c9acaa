// Package config handles configuration loading for eva-conversations.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
//	server:
//	  http_addr: "localhost:8080"
//
//	database:
//	  path: "~/.local/share/eva/conversations.db"
//
//	conversation:
//	  expires: "60s"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${EVA_DB_PATH}"
//
// # Expiry Threshold
//
// conversation.expires bounds how long a conversation accepts follow-up
// interactions, measured from the last interaction's open. It defaults to
// 60s; a non-positive value is rejected at load time.
package config
