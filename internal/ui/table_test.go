package ui

import (
	"screenshare/media"
	"strings"
	"testing"
	"time"
)

func TestFormatSize(t *testing.T) {
	testCases := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}

	for _, tc := range testCases {
		if got := FormatSize(tc.size); got != tc.want {
			t.Errorf("FormatSize(%d): got %s, want %s", tc.size, got, tc.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	now := time.UnixMilli(100_000)
	if got := FormatAge(0, now); got != "-" {
		t.Errorf("Expected - for unknown age, got %s", got)
	}
	if got := FormatAge(100_000, now); got != "just now" {
		t.Errorf("Expected just now, got %s", got)
	}
	if got := FormatAge(40_000, now); got != "1m0s ago" {
		t.Errorf("Expected 1m0s ago, got %s", got)
	}
}

func TestRoomTableView(t *testing.T) {
	if got := RoomTableView(nil, time.Now()); !strings.Contains(got, "No active rooms") {
		t.Errorf("Expected empty notice, got %q", got)
	}

	view := RoomTableView([]RoomRow{{ID: "room_abc123", Users: 2, Sharing: true}}, time.Now())
	for _, want := range []string{"room_abc123", "Users", "2"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected table to contain %q:\n%s", want, view)
		}
	}
}

func TestStatsView(t *testing.T) {
	view := StatsView(media.StatsSnapshot{Codec: "video/VP8", Frames: 30, Elapsed: time.Second})
	if !strings.Contains(view, "30.0 fps") || !strings.Contains(view, "video/VP8") {
		t.Errorf("Unexpected stats view:\n%s", view)
	}
}
