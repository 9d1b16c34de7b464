// Package schemasassets embeds the JSON schemas used to validate user input,
// so validation does not depend on files installed next to the binary.
package schemasassets

import _ "embed"

// SyncManifestSchema is the sync-manifest JSON schema.
//
//go:embed sync-manifest.schema.json
var SyncManifestSchema []byte
