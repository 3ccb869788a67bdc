package domain

import "time"

// EndpointClass groups vendor endpoints that share a rate-limit bucket
// (e.g. "salesforce:rest", "salesforce:bulk", "gitlab:default").
type EndpointClass string

// RateLimitPolicy is a per-(tenant, source, endpoint class) record holding
// the nominal rate and burst used to configure a token bucket. Lazily
// created on first use and retained for process lifetime (§3, §9).
type RateLimitPolicy struct {
	TenantID      string
	Source        Source
	EndpointClass EndpointClass
	RequestsPer   int
	Window        time.Duration
	Burst         int
}

// Key uniquely identifies the token bucket this policy configures.
func (p RateLimitPolicy) Key() string {
	return string(p.Source) + ":" + p.TenantID + ":" + string(p.EndpointClass)
}

// Published vendor defaults referenced by the connector factory when no
// tenant-specific override exists.
var DefaultPolicies = map[Source]RateLimitPolicy{
	SourceGitLabMR:         {Source: SourceGitLabMR, RequestsPer: 5, Window: time.Second, Burst: 10},
	SourceGitLabFile:       {Source: SourceGitLabFile, RequestsPer: 5, Window: time.Second, Burst: 10},
	SourceFirefliesTranscr: {Source: SourceFirefliesTranscr, RequestsPer: 60, Window: time.Minute, Burst: 10},
	SourcePylonIssue:       {Source: SourcePylonIssue, RequestsPer: 100, Window: time.Minute, Burst: 20},
	SourceSalesforce:       {Source: SourceSalesforce, RequestsPer: 20, Window: time.Second, Burst: 40},
	SourceTeamworkTask:     {Source: SourceTeamworkTask, RequestsPer: 10, Window: time.Second, Burst: 20},
	SourceLinearIssue:      {Source: SourceLinearIssue, RequestsPer: 50, Window: time.Minute, Burst: 10},
	SourcePipedriveDeal:    {Source: SourcePipedriveDeal, RequestsPer: 10, Window: time.Second, Burst: 20},
	SourceAttioRecord:      {Source: SourceAttioRecord, RequestsPer: 5, Window: time.Second, Burst: 10},
	SourceCanvaDesign:      {Source: SourceCanvaDesign, RequestsPer: 10, Window: time.Second, Burst: 20},
	SourceFigmaFile:        {Source: SourceFigmaFile, RequestsPer: 10, Window: time.Second, Burst: 20},
	SourcePostHogInsight:   {Source: SourcePostHogInsight, RequestsPer: 10, Window: time.Second, Burst: 20},
}
