package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitPolicy_Key(t *testing.T) {
	p := RateLimitPolicy{TenantID: "t1", Source: SourceGitLabMR, EndpointClass: "default"}
	assert.Equal(t, "gitlab_mr:t1:default", p.Key())

	other := RateLimitPolicy{TenantID: "t2", Source: SourceGitLabMR, EndpointClass: "default"}
	assert.NotEqual(t, p.Key(), other.Key(), "different tenants must not share a bucket")
}

func TestDefaultPolicies_CoverEveryConnector(t *testing.T) {
	for _, src := range []Source{
		SourceGitLabMR, SourceGitLabFile, SourceFirefliesTranscr, SourcePylonIssue,
		SourceSalesforce, SourceTeamworkTask, SourceLinearIssue, SourcePipedriveDeal,
		SourceAttioRecord, SourceCanvaDesign, SourceFigmaFile, SourcePostHogInsight,
	} {
		policy, ok := DefaultPolicies[src]
		assert.True(t, ok, "missing default policy for %s", src)
		assert.Greater(t, policy.RequestsPer, 0)
		assert.Greater(t, policy.Window, time.Duration(0))
	}
}
