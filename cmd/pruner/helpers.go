package main

import (
	"context"

	"github.com/brightlane/ingestflow/internal/domain"
	"github.com/brightlane/ingestflow/internal/store"
)

// cfgOrDefault reads a config key, falling back to a static default both
// when the key is absent and when the read itself fails.
func cfgOrDefault(ctx context.Context, cfgStore *store.ConfigStore, key, fallback string) string {
	v, err := cfgStore.GetOrDefault(ctx, key, fallback)
	if err != nil {
		return fallback
	}
	return v
}

func splitCSV(raw string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if s := trimSpace(raw[start:i]); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	return out
}

func trimSpace(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

func defaultBaseURL(src domain.Source) string {
	switch src {
	case domain.SourceGitLabMR, domain.SourceGitLabFile:
		return "https://gitlab.com"
	case domain.SourceTeamworkTask:
		return "https://api.teamwork.com"
	case domain.SourceFigmaFile:
		return "https://api.figma.com"
	case domain.SourceCanvaDesign:
		return "https://api.canva.com/rest"
	case domain.SourceAttioRecord:
		return "https://api.attio.com"
	default:
		return ""
	}
}
