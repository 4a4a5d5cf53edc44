package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	schemasassets "github.com/3leaps/expobuild/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// SchemaID identifies the embedded schema for the "expo" section.
const SchemaID = "expobuild/v1.0.0/expo-manifest"

var (
	ErrSchemaNotFound   = errors.New("manifest schema not found")
	ErrValidationFailed = errors.New("manifest validation failed")
)

// loadValidator compiles the embedded schema on first use.
var loadValidator = sync.OnceValues(func() (*schema.Validator, error) {
	if len(schemasassets.ExpoManifestSchema) == 0 {
		return nil, fmt.Errorf("%w: embedded expo-manifest schema is empty", ErrSchemaNotFound)
	}
	v, err := schema.NewValidator(schemasassets.ExpoManifestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", SchemaID, err)
	}
	return v, nil
})

// ValidationError is one rejected field of the expo section. Path is a JSON
// pointer relative to the section, e.g. "/android/package".
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors lists every rejected field so users can fix app.json in
// one pass. It matches ErrValidationFailed.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return ErrValidationFailed.Error()
	case 1:
		return "expo section: " + e[0].Error()
	}
	lines := make([]string, 0, len(e))
	for _, ve := range e {
		lines = append(lines, "  - "+ve.Error())
	}
	return fmt.Sprintf("expo section has %d problems:\n%s", len(e), strings.Join(lines, "\n"))
}

func (e ValidationErrors) Unwrap() error { return ErrValidationFailed }

// Validate checks an already decoded expo section.
func Validate(m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode expo section: %w", err)
	}
	return ValidateRaw(data)
}

// ValidateRaw checks the JSON of an expo section. Schema warnings are
// ignored; only errors fail the manifest.
func ValidateRaw(jsonData []byte) error {
	v, err := loadValidator()
	if err != nil {
		return err
	}

	diags, err := v.ValidateJSON(jsonData)
	if err != nil {
		return fmt.Errorf("validate expo section: %w", err)
	}

	var errs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		errs = append(errs, ValidationError{Path: d.Pointer, Message: d.Message})
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}
