package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/google/jsonschema-go/jsonschema"
	invopop "github.com/invopop/jsonschema"
)

// Validator checks tool arguments against a resolved input schema
type Validator struct {
	resolved *jsonschema.Resolved
}

// NewValidator resolves the schema for validation.
// A nil schema accepts any arguments.
func NewValidator(s *invopop.Schema) (*Validator, error) {
	if s == nil {
		return &Validator{}, nil
	}

	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal schema")
	}
	var vs jsonschema.Schema
	if err = json.Unmarshal(js, &vs); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal schema")
	}
	// the draft and id of reflected schemas are not needed to validate
	vs.Schema = ""
	vs.ID = ""

	resolved, err := vs.Resolve(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve schema")
	}
	return &Validator{resolved: resolved}, nil
}

// Validate returns an error if args do not satisfy the schema
func (v *Validator) Validate(args map[string]any) error {
	if v == nil || v.resolved == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := v.resolved.Validate(args); err != nil {
		return errors.WithMessage(err, "arguments do not match the input schema")
	}
	return nil
}
