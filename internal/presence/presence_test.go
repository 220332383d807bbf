package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(t time.Time) *time.Time { return &t }

func TestIsOnline(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsOnline(cfg, nil, now))
	assert.True(t, IsOnline(cfg, ts(now.Add(-time.Minute)), now))
	assert.True(t, IsOnline(cfg, ts(now.Add(-5*time.Minute)), now))
	assert.False(t, IsOnline(cfg, ts(now.Add(-6*time.Minute)), now))
}

func TestStatus(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, StatusOffline, Status(cfg, nil, now))
	assert.Equal(t, StatusOnline, Status(cfg, ts(now.Add(-30*time.Second)), now))
	assert.Equal(t, StatusRecently, Status(cfg, ts(now.Add(-30*time.Minute)), now))
	assert.Equal(t, StatusOffline, Status(cfg, ts(now.Add(-2*time.Hour)), now))
}

func TestLastSeenText(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		lastSeen *time.Time
		want     string
	}{
		{"never", nil, "Never"},
		{"online", ts(now.Add(-2 * time.Minute)), "Online"},
		{"minutes", ts(now.Add(-12 * time.Minute)), "12 minutes ago"},
		{"one hour", ts(now.Add(-90 * time.Minute)), "1 hour ago"},
		{"hours", ts(now.Add(-5 * time.Hour)), "5 hours ago"},
		{"days", ts(now.Add(-3 * 24 * time.Hour)), "3 days ago"},
		{"old", ts(now.Add(-30 * 24 * time.Hour)), "02 May 2025"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LastSeenText(cfg, tc.lastSeen, now))
		})
	}
}

func TestLastSeenDetailed(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	detail := LastSeenDetailed(cfg, nil, now)
	assert.Equal(t, "Never", detail.Text)
	assert.Nil(t, detail.Timestamp)

	seen := now.Add(-10 * time.Minute)
	detail = LastSeenDetailed(cfg, &seen, now)
	assert.Equal(t, "10 minutes ago", detail.Text)
	assert.Equal(t, seen.Format(time.RFC3339), detail.Exact)
	assert.Equal(t, int64(600), detail.DeltaSeconds)
}

func TestClockSkewClampsToZero(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)

	assert.Equal(t, "Online", LastSeenText(cfg, &future, now))
	assert.Equal(t, int64(0), LastSeenDetailed(cfg, &future, now).DeltaSeconds)
}
