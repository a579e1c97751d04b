// Package app wires the Transcriptor license service together and runs it.
//
// # Initialization Flow
//
//	1. Load configuration from defaults, the optional YAML file and the environment
//	2. Initialize logging and OpenTelemetry
//	3. Build the device fingerprinter and the license manager
//	4. Set up HTTP handlers and middleware
//	5. Serve until the context is cancelled, then shut down gracefully
//
// A missing, expired or unverifiable license never stops startup; it only
// closes the premium features.
package app
