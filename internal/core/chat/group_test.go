package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGroupSessionsTieBreaks(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []ChatRecord{
		{ID: "a", SessionID: "s1", Title: "from a", CreatedAt: at},
		{ID: "b", SessionID: "s1", Title: "from b", CreatedAt: at},
		{ID: "c", SessionID: "s2", Title: "", CreatedAt: at},
		{ID: "d", SessionID: "s3", Title: "older", CreatedAt: at.Add(-time.Hour)},
	}

	sessions := groupSessions(records)

	assert.Equal(t, []SessionSummary{
		{ID: "s1", Name: "from b", CreatedAt: at},
		{ID: "s2", Name: DefaultTitle, CreatedAt: at},
		{ID: "s3", Name: "older", CreatedAt: at.Add(-time.Hour)},
	}, sessions)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultRecentLimit, normalizeLimit(0))
	assert.Equal(t, DefaultRecentLimit, normalizeLimit(-3))
	assert.Equal(t, 7, normalizeLimit(7))
	assert.Equal(t, MaxRecentLimit, normalizeLimit(10000))
}
