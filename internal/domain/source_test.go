package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityID(t *testing.T) {
	t.Run("no container", func(t *testing.T) {
		assert.Equal(t, "linear_issue_abc123", EntityID(SourceLinearIssue, "", "abc123"))
	})

	t.Run("with container", func(t *testing.T) {
		assert.Equal(t, "gitlab_mr_42_99", EntityID(SourceGitLabMR, "42", "99"))
	})

	t.Run("pure function", func(t *testing.T) {
		first := EntityID(SourceAttioRecord, "companies", "rec_1")
		second := EntityID(SourceAttioRecord, "companies", "rec_1")
		assert.Equal(t, first, second)
	})
}
