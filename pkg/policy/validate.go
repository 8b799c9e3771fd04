package policy

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/specguard/internal/assets/schemas"
)

// SchemaID is the schema identifier for backup policies.
const SchemaID = "specguard/v1.0.0/backup-policy"

// Cached validator instance (compiled once from embedded schema)
var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// Validate checks a loaded document against the backup-policy JSON schema.
//
// A document with no content is validated as JSON null, which the schema
// rejects.
func Validate(doc *Document) error {
	var raw any
	if doc != nil && doc.Raw != nil {
		raw = doc.Raw
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to serialize policy for validation: %w", err)
	}

	return ValidateRaw(data)
}

// ValidateRaw checks raw JSON data against the backup-policy schema.
//
// Returns nil if validation succeeds, or a ValidationErrors with details
// about all validation failures.
func ValidateRaw(jsonData []byte) error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		// Warnings do not fail the policy.
		if d.Severity == schema.SeverityError {
			errs = append(errs, ValidationError{
				Path:    d.Pointer,
				Message: d.Message,
			})
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return errs
}

// getValidator returns a cached validator compiled from the embedded schema.
func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.BackupPolicySchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded backup-policy schema is empty", ErrSchemaNotFound)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.BackupPolicySchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("failed to compile backup-policy schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
