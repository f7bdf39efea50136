package services

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/openclaw/marketplace/internal/apperror"
)

// Request body schema names.
const (
	SchemaCreateTask    = "create_task"
	SchemaSubmission    = "submission"
	SchemaProfilePatch  = "profile_patch"
	SchemaBindEmail     = "bind_email"
	SchemaBindPayout    = "bind_payout"
	SchemaWorkerConnect = "worker_connect"
	SchemaWithdraw      = "withdraw"
	SchemaDeposit       = "deposit"
	SchemaRegister      = "register"
	SchemaLogin         = "login"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrValidation can be used with errors.Is to detect schema rejections.
var ErrValidation = errors.New("validation failed")

type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded request schema.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schema dir: %w", err)
	}
	schemas := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		data, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		id := "https://openclaw.dev/schemas/" + name + ".json"
		if schemas[name], err = jsonschema.CompileString(id, string(data)); err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// Validate checks body against the named schema. Rejections are Validation
// AppErrors naming the first offending field.
func (v *Validator) Validate(name string, body []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperror.Wrap(ErrValidation, apperror.ErrCodeValidation, "request body is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return apperror.Wrap(ErrValidation, apperror.ErrCodeValidation, describe(err))
	}
	return nil
}

// Decode validates body and unmarshals it into dst.
func (v *Validator) Decode(name string, body []byte, dst any) error {
	if err := v.Validate(name, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperror.Wrap(ErrValidation, apperror.ErrCodeValidation, "request body does not match the expected shape")
	}
	return nil
}

func describe(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	field := strings.TrimPrefix(strings.ReplaceAll(ve.InstanceLocation, "/", "."), ".")
	if field == "" {
		return ve.Message
	}
	return field + ": " + ve.Message
}
