// SPDX-License-Identifier: MIT
package validate

import "strings"

// LogLevels are the accepted log level names.
var LogLevels = []string{"trace", "debug", "info", "warn", "error"}

// Backends are the accepted collaborator backends.
var Backends = []string{"memory"}

// ExporterTypes are the accepted OTLP exporter transports.
var ExporterTypes = []string{"grpc", "http"}

// NormalizeLevel lowercases and trims a log level.
func NormalizeLevel(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
