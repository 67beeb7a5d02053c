package controllers

import (
	"testing"
	"time"
)

func TestDaysBetween(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		from time.Time
		to   time.Time
		want int
	}{
		{name: "same day", from: base, to: base, want: 0},
		{name: "same day later hour", from: base, to: base.Add(23 * time.Hour), want: 0},
		{name: "next day", from: base, to: base.AddDate(0, 0, 1), want: 1},
		{name: "two weeks", from: base, to: base.AddDate(0, 0, 14), want: 14},
		{name: "earlier day", from: base, to: base.AddDate(0, 0, -3), want: -3},
	}
	for _, tt := range tests {
		if got := daysBetween(tt.from, tt.to); got != tt.want {
			t.Errorf("%s: daysBetween = %d, want %d", tt.name, got, tt.want)
		}
	}
}
