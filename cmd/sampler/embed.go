package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time.
// Build scripts may overwrite embed_config.yaml with a machine-specific
// configuration before compiling.
//
//go:embed embed_config.yaml
var embeddedConfig []byte
