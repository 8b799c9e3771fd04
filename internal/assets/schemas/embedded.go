// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so strict validation works regardless
// of the working directory or installation location.
package schemasassets

import _ "embed"

// BackupPolicySchema is the embedded backup-policy JSON schema used by
// backup_check --strict.
//
//go:embed backup-policy.schema.json
var BackupPolicySchema []byte
