package domain

import "fmt"

// Well-known sync-state key suffixes, appended to a "<SOURCE>_<ENTITY>_"
// prefix to form the config table's primary key (§3, §6).
const (
	KeySuffixSyncedUntil      = "SYNCED_UNTIL"
	KeySuffixBackfillComplete = "BACKFILL_COMPLETE"
	KeySuffixSyncedCommit     = "SYNCED_COMMIT"
	KeySuffixCursor           = "CURSOR"
)

// SyncStateKey builds the well-known config-table key for a
// (source, entity, suffix) triple, e.g. "GITLAB_MR_SYNCED_UNTIL".
func SyncStateKey(source Source, entity, suffix string) string {
	return fmt.Sprintf("%s_%s_%s", upper(string(source)), upper(entity), suffix)
}

// ScopedSyncStateKey builds a key with a trailing scope qualifier, for
// container-scoped watermarks such as "GITLAB_MR_SYNCED_UNTIL_<project_id>".
func ScopedSyncStateKey(source Source, entity, suffix, scope string) string {
	return fmt.Sprintf("%s_%s", SyncStateKey(source, entity, suffix), scope)
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
