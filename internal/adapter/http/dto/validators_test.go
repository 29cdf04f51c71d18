package dto

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	v.SetTagName("binding")
	require.NoError(t, v.RegisterValidation("safe_id", validateSafeID))
	return v
}

func TestSafeID_AcceptsIdentifiers(t *testing.T) {
	v := newValidator(t)

	for _, s := range []string{"BET-1001", "op_user.01", "abc", "A.B-C_D"} {
		assert.NoError(t, v.Var(s, "safe_id"), "value: %s", s)
	}
}

func TestSafeID_RejectsUnsafeInput(t *testing.T) {
	v := newValidator(t)

	for _, s := range []string{
		"",
		"has space",
		"semi;colon",
		"quote'",
		"<script>",
		"colon:separator",
		"slash/path",
	} {
		assert.Error(t, v.Var(s, "safe_id"), "value: %s", s)
	}
}

func TestOperationRequest_BindingRules(t *testing.T) {
	v := newValidator(t)

	req := OperationRequest{
		Reference: "BET-1001",
		ProjectID: "2f0c9a1e-5b7d-4f7e-9a34-0c1d2e3f4a5b",
		Type:      "ARBITRAGE",
		Strategy:  "VALUE",
		Mode:      "SINGLE",
		Legs: []LegRequest{
			{AccountID: "2f0c9a1e-5b7d-4f7e-9a34-0c1d2e3f4a5c"},
			{AccountID: "2f0c9a1e-5b7d-4f7e-9a34-0c1d2e3f4a5d"},
		},
	}
	assert.NoError(t, v.Struct(req))

	req.Type = "SIDEWAYS"
	assert.Error(t, v.Struct(req), "unknown operation type must fail oneof")

	req.Type = "ARBITRAGE"
	req.Legs[0].AccountID = "not-a-uuid"
	assert.Error(t, v.Struct(req), "leg account id must be a uuid")
}
