// Package config loads the Transcriptor runtime configuration.
//
// # Configuration Sources
//
// Values are resolved in the following order, later sources winning:
//
//	1. Built-in defaults (see Default)
//	2. An optional YAML file (TRANSCRIPTOR_CONFIG_FILE, or config.yaml / configs/config.yaml)
//	3. Environment variables prefixed with TRANSCRIPTOR_
//
// # Environment Variables
//
//	TRANSCRIPTOR_SERVER_PORT=8765
//	TRANSCRIPTOR_LOGGING_LEVEL=debug
//	TRANSCRIPTOR_LICENSE_FILE=/var/lib/transcriptor/license.json
//	TRANSCRIPTOR_LICENSE_PUBLIC_KEY_PATH=/etc/transcriptor/license_pub.pem
//	TRANSCRIPTOR_LICENSE_ALGORITHMS=RS256,ES256
//	TRANSCRIPTOR_LICENSE_LEGACY_SECRET=...
//
// There is deliberately no built-in verification key. When neither
// LICENSE_PUBLIC_KEY_PATH nor LICENSE_PUBLIC_KEY is set the application still
// starts; signed licenses simply evaluate as inactive.
package config
