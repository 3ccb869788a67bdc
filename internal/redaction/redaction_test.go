package redaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactor_RedactString(t *testing.T) {
	r := NewRedactor(DefaultConfig())

	out := r.RedactString(`api_key: "sk-12345"`)
	assert.Contains(t, out, "***REDACTED***")
	assert.NotContains(t, out, "sk-12345")
}

func TestRedactor_RedactString_Disabled(t *testing.T) {
	r := NewRedactor(SecretConfig{Enabled: false})
	in := `token: "secret-value"`
	assert.Equal(t, in, r.RedactString(in))
}

func TestRedactor_RedactMap_BlockedField(t *testing.T) {
	r := NewRedactor(DefaultConfig())
	out := r.RedactMap(map[string]interface{}{
		"password": "hunter2",
		"name":     "gitlab_mr",
	})
	assert.Equal(t, "***REDACTED***", out["password"])
	assert.Equal(t, "gitlab_mr", out["name"])
}

func TestRedactor_RedactMap_Nested(t *testing.T) {
	r := NewRedactor(DefaultConfig())
	out := r.RedactMap(map[string]interface{}{
		"credential": map[string]interface{}{
			"secret": "nested-value",
		},
	})
	assert.Equal(t, "***REDACTED***", out["credential"])
}

func TestRedactPath(t *testing.T) {
	assert.Equal(t, "/projects/…/issues", RedactPath("/projects/48213/issues"))

	uuidPath := "/records/550e8400-e29b-41d4-a716-446655440000/export"
	assert.Equal(t, "/records/…/export", RedactPath(uuidPath))
}

func TestRedactAll(t *testing.T) {
	out := RedactAll(`Authorization: Bearer abc.def.ghi`)
	assert.NotContains(t, out, "abc.def.ghi")
}
