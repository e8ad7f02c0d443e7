// Package configs provides the embedded configuration template for docindex.
//
// The template is embedded at build time via go:embed so it ships inside the
// binary itself — source builds, binary releases, and package-manager
// installs all carry the same copy without relying on a side-by-side file.
//
// Configuration precedence (see internal/config.Load):
//  1. Hardcoded defaults (internal/config.NewConfig)
//  2. User config (~/.config/docindex/config.yaml, or config.example.yaml
//     below copied there by `docindex config init`)
//  3. --config flag path, if given
//  4. DOCINDEX_* environment variables
package configs

import _ "embed"

// ConfigTemplate is written to disk by `docindex config init` and mirrors
// every field internal/config.Config understands.
//
//go:embed config.example.yaml
var ConfigTemplate string
