// Package session loads the persisted Expo authentication state and turns it
// into request credentials.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	schemasassets "github.com/3leaps/expobuild/internal/assets/schemas"
	"github.com/fulmenhq/gofulmen/schema"
)

// DefaultPath is where the expo tooling persists its session state.
const DefaultPath = "~/.expo/state.json"

var (
	// ErrSessionNotFound indicates the state file does not exist.
	ErrSessionNotFound = errors.New("session state not found")

	// ErrInvalidState indicates the state file does not match the expected shape.
	ErrInvalidState = errors.New("invalid session state")
)

// State is the persisted session. Absent fields decode as empty strings.
type State struct {
	AccessToken string `json:"accessToken,omitempty"`
	Auth        Auth   `json:"auth"`
}

// Auth holds the interactive-login part of the session.
type Auth struct {
	SessionSecret string `json:"sessionSecret,omitempty"`
	Username      string `json:"username,omitempty"`
	UserID        string `json:"userId,omitempty"`
}

// Load reads the state file at path. The path is used as given; callers
// expand "~" themselves.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (log in with the expo CLI first)", ErrSessionNotFound, path)
		}
		return nil, fmt.Errorf("read session state: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates session state JSON.
func Parse(data []byte) (*State, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	return &st, nil
}

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

func validate(data []byte) error {
	validatorOnce.Do(func() {
		validator, validatorErr = schema.NewValidator(schemasassets.SessionStateSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("failed to compile session schema: %w", validatorErr)
		}
	})
	if validatorErr != nil {
		return validatorErr
	}

	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}

	diags, err := validator.ValidateJSON(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	for _, d := range diags {
		if d.Severity == schema.SeverityError {
			return fmt.Errorf("%w: %s: %s", ErrInvalidState, d.Pointer, d.Message)
		}
	}
	return nil
}
