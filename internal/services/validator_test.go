package services

import (
	"errors"
	"testing"

	"github.com/openclaw/marketplace/internal/apperror"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func TestValidate_CreateTask_Valid(t *testing.T) {
	v := newTestValidator(t)

	body := []byte(`{"type":"chat","input":{"messages":[{"role":"user","content":"hi"}]},"constraints":{"timeout_seconds":30}}`)
	if err := v.Validate(SchemaCreateTask, body); err != nil {
		t.Fatalf("expected valid create_task body, got: %v", err)
	}
	skill := []byte(`{"type":"skill:sql-review","input":{"messages":[{"role":"user","content":"x"}],"context":{"lang":"go"}}}`)
	if err := v.Validate(SchemaCreateTask, skill); err != nil {
		t.Fatalf("expected skill type to be accepted, got: %v", err)
	}
}

func TestValidate_CreateTask_Invalid(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name string
		body string
	}{
		{name: "unknown type", body: `{"type":"dance","input":{"messages":[{"role":"user","content":"hi"}]}}`},
		{name: "no messages", body: `{"type":"chat","input":{"messages":[]}}`},
		{name: "bad role", body: `{"type":"chat","input":{"messages":[{"role":"robot","content":"hi"}]}}`},
		{name: "timeout too short", body: `{"type":"chat","input":{"messages":[{"role":"user","content":"hi"}]},"constraints":{"timeout_seconds":5}}`},
		{name: "nested context object", body: `{"type":"chat","input":{"messages":[{"role":"user","content":"hi"}],"context":{"$gt":{}}}}`},
		{name: "not json", body: `{"type":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(SchemaCreateTask, []byte(tc.body))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got: %v", err)
			}
			if !apperror.IsValidation(err) {
				t.Errorf("expected VALIDATION_ERROR code, got: %v", err)
			}
		})
	}
}

func TestValidate_Submission(t *testing.T) {
	v := newTestValidator(t)

	ok := []byte(`{"task_id":"6f1c1b5e-8a4e-4c39-9d7e-0b9b8f0f2a11","output":{"content":"4","format":"text"}}`)
	if err := v.Validate(SchemaSubmission, ok); err != nil {
		t.Fatalf("expected valid submission, got: %v", err)
	}
	badFormat := []byte(`{"task_id":"6f1c1b5e-8a4e-4c39-9d7e-0b9b8f0f2a11","output":{"content":"4","format":"pdf"}}`)
	if err := v.Validate(SchemaSubmission, badFormat); err == nil {
		t.Fatal("expected format enum to reject pdf")
	}
	empty := []byte(`{"task_id":"6f1c1b5e-8a4e-4c39-9d7e-0b9b8f0f2a11","output":{"content":"","format":"text"}}`)
	if err := v.Validate(SchemaSubmission, empty); err == nil {
		t.Fatal("expected empty content to be rejected")
	}
}

func TestValidate_ProfilePatchRejectsEmpty(t *testing.T) {
	v := newTestValidator(t)

	if err := v.Validate(SchemaProfilePatch, []byte(`{}`)); err == nil {
		t.Fatal("expected empty patch to be rejected")
	}
	if err := v.Validate(SchemaProfilePatch, []byte(`{"preferences":{"min_price":10}}`)); err != nil {
		t.Fatalf("expected valid patch, got: %v", err)
	}
}

func TestValidate_DepositAmounts(t *testing.T) {
	v := newTestValidator(t)

	if err := v.Validate(SchemaDeposit, []byte(`{"amount_cents":1000}`)); err != nil {
		t.Fatalf("expected 1000 to be accepted, got: %v", err)
	}
	if err := v.Validate(SchemaDeposit, []byte(`{"amount_cents":700}`)); err == nil {
		t.Fatal("expected 700 to be rejected")
	}
}

func TestDecode(t *testing.T) {
	v := newTestValidator(t)

	var req struct {
		Method  string `json:"method"`
		Address string `json:"address"`
	}
	if err := v.Decode(SchemaBindPayout, []byte(`{"method":"solana","address":"So1ana"}`), &req); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.Method != "solana" || req.Address != "So1ana" {
		t.Errorf("decoded %+v", req)
	}
}

func TestEverySchemaCompiles(t *testing.T) {
	v := newTestValidator(t)

	names := []string{
		SchemaCreateTask, SchemaSubmission, SchemaProfilePatch, SchemaBindEmail, SchemaBindPayout,
		SchemaWorkerConnect, SchemaWithdraw, SchemaDeposit, SchemaRegister, SchemaLogin,
	}
	if got := len(v.schemas); got != len(names) {
		t.Fatalf("expected %d schemas, got %d", len(names), got)
	}
	for _, name := range names {
		if _, ok := v.schemas[name]; !ok {
			t.Errorf("missing schema %q", name)
		}
	}
}
