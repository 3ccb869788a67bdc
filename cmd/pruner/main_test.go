package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/brightlane/ingestflow/internal/pruner"
)

func TestEntityKindOf(t *testing.T) {
	facades := map[string]*pruner.Facade{
		"gitlab_merge_request": nil,
		"attio_record_people":  nil,
	}

	kind, id := entityKindOf("gitlab_mr_42_99", facades)
	assert.Equal(t, "gitlab_merge_request", kind)
	assert.Equal(t, "gitlab_mr_42_99", id)

	kind, _ = entityKindOf("attio_record_people_123", facades)
	assert.Equal(t, "attio_record_people", kind)

	kind, _ = entityKindOf("linear_issue_abc", facades)
	assert.Equal(t, "", kind, "sources with no registered facade should not match")
}
