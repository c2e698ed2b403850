package main

import _ "embed"

// embeddedConfig holds the YAML configuration embedded at build time.
// Packagers overwrite sysmon.yaml with site defaults before compiling.
//
//go:embed sysmon.yaml
var embeddedConfig []byte
