package model

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Regenerate with: go test ./internal/model -update
func TestWeekWindow_AcrossDST_Golden(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	var b strings.Builder
	for _, start := range WeekRange(now, loc, time.Monday, 2, 1) {
		end := start.AddDate(0, 0, 7)
		fmt.Fprintf(&b, "week %s %s %s %dh\n",
			WeekKey(start), start.Format(time.RFC3339), start.UTC().Format(time.RFC3339), int(end.Sub(start).Hours()))
	}
	from := time.Date(2026, 3, 7, 22, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)
	for _, c := range DayChunks(from, to, 24*time.Hour) {
		fmt.Fprintf(&b, "chunk %s %s\n", c[0].Format(time.RFC3339), c[1].Format(time.RFC3339))
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "week_window_dst", []byte(b.String()))
}
