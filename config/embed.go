// Package config carries the embedded default configuration.
package config

import _ "embed"

// Default is the built-in conf.yaml applied before any file or environment
// override.
//
//go:embed default.yaml
var Default []byte
