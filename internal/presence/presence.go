// Package presence derives online/last-seen display state from a timestamp.
// Everything here is a pure function of "now minus last seen" so the
// derived fields can never go stale on a stored record.
package presence

import (
	"fmt"
	"time"
)

// Status values reported for a user.
const (
	StatusOnline   = "online"
	StatusRecently = "recently"
	StatusOffline  = "offline"
)

// Config holds the thresholds separating the presence states.
type Config struct {
	// OnlineWindow is how long after the last request a user still counts
	// as online.
	OnlineWindow time.Duration
	// RecentWindow is how long a user is shown as "recently" active.
	RecentWindow time.Duration
}

// DefaultConfig mirrors the windows used by the admin UI.
func DefaultConfig() Config {
	return Config{
		OnlineWindow: 5 * time.Minute,
		RecentWindow: time.Hour,
	}
}

// Detail is the structured last-seen information shown in the user list.
type Detail struct {
	Timestamp    *time.Time `json:"timestamp"`
	Text         string     `json:"text"`
	Exact        string     `json:"exact"`
	DeltaSeconds int64      `json:"delta_seconds"`
}

// IsOnline reports whether lastSeen falls within the online window.
func IsOnline(cfg Config, lastSeen *time.Time, now time.Time) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) <= cfg.OnlineWindow
}

// Status classifies lastSeen into online/recently/offline.
func Status(cfg Config, lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return StatusOffline
	}
	delta := now.Sub(*lastSeen)
	switch {
	case delta <= cfg.OnlineWindow:
		return StatusOnline
	case delta <= cfg.RecentWindow:
		return StatusRecently
	default:
		return StatusOffline
	}
}

// LastSeenText renders the short human string for the user list.
func LastSeenText(cfg Config, lastSeen *time.Time, now time.Time) string {
	if lastSeen == nil {
		return "Never"
	}
	delta := now.Sub(*lastSeen)
	if delta < 0 {
		delta = 0
	}
	switch {
	case delta <= cfg.OnlineWindow:
		return "Online"
	case delta < time.Hour:
		return plural(int(delta.Minutes()), "minute")
	case delta < 24*time.Hour:
		return plural(int(delta.Hours()), "hour")
	case delta < 7*24*time.Hour:
		return plural(int(delta.Hours()/24), "day")
	default:
		return lastSeen.Format("02 Jan 2006")
	}
}

// LastSeenDetailed returns the structured detail with the exact timestamp.
func LastSeenDetailed(cfg Config, lastSeen *time.Time, now time.Time) Detail {
	if lastSeen == nil {
		return Detail{Text: "Never"}
	}
	delta := now.Sub(*lastSeen)
	if delta < 0 {
		delta = 0
	}
	return Detail{
		Timestamp:    lastSeen,
		Text:         LastSeenText(cfg, lastSeen, now),
		Exact:        lastSeen.Format(time.RFC3339),
		DeltaSeconds: int64(delta.Seconds()),
	}
}

func plural(n int, unit string) string {
	if n <= 1 {
		n = 1
	}
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
