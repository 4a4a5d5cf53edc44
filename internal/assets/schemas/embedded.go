// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so validation works regardless of the
// working directory or installation location.
package schemasassets

import _ "embed"

// ExpoManifestSchema is the embedded schema for the `expo` section of app.json.
//
//go:embed expo-manifest.schema.json
var ExpoManifestSchema []byte

// SessionStateSchema is the embedded schema for the persisted session state file.
//
//go:embed session-state.schema.json
var SessionStateSchema []byte
