package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapetech/epgnorm/internal/category"
	"github.com/snapetech/epgnorm/internal/pipeline"
)

func sampleResult(runID string, n int) *pipeline.Result {
	logo := "https://logos/alpha.png"
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	res := &pipeline.Result{
		RunID:       runID,
		Source:      "guide.xml",
		Mode:        pipeline.ModeXMLTV,
		GeneratedAt: start,
		Channels: []pipeline.Channel{
			{ID: "A", Name: "Alpha", LogoURL: &logo, Categories: []string{"General"}},
			{ID: "B", Name: "Beta"},
		},
		Stats: pipeline.Stats{Format: "plain", Channels: 2, Parsed: n, Programs: n},
	}
	for i := 0; i < n; i++ {
		s := start.Add(time.Duration(i) * time.Hour)
		res.Programs = append(res.Programs, pipeline.Program{
			ID:              "A-" + s.Format("20060102150405") + "-" + string(rune('0'+i)),
			Title:           "Show",
			ChannelID:       "A",
			ChannelName:     "Alpha",
			Category:        category.Series,
			Start:           s,
			End:             s.Add(time.Hour),
			DurationMinutes: 60,
			Actors:          []string{},
			Date:            "01/01/2024",
		})
	}
	res.Programs[0].LogoURL = &logo
	res.Programs[0].Actors = []string{"A. Actor"}
	return res
}

func TestSQLite_replaceAndLoad(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "epg.db"))
	if err != nil {
		t.Skipf("sqlite not available: %v", err)
	}
	defer db.Close()

	_, err = db.Load(ctx)
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	first := sampleResult("run-1", 5)
	require.NoError(t, db.Replace(ctx, first))
	second := sampleResult("run-2", 2)
	require.NoError(t, db.Replace(ctx, second))

	ch, pr, err := db.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, ch)
	assert.Equal(t, 2, pr, "replace must not merge with the previous run")

	got, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", got.RunID)
	assert.Equal(t, second.Stats, got.Stats)
	assert.Equal(t, second.Channels, got.Channels)
	require.Len(t, got.Programs, 2)
	for i := range got.Programs {
		want, have := second.Programs[i], got.Programs[i]
		assert.True(t, want.Start.Equal(have.Start))
		have.Start, have.End = want.Start, want.End
		assert.Equal(t, want, have)
	}
}

func TestSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "epg.json")
	_, err := ReadSnapshot(path)
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	res := sampleResult("run-1", 3)
	require.NoError(t, WriteSnapshot(path, res))
	got, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, got.RunID)
	require.Len(t, got.Programs, 3)
	assert.Equal(t, category.Series, got.Programs[0].Category)
	assert.Equal(t, "https://logos/alpha.png", *got.Programs[0].LogoURL)
	assert.Nil(t, got.Programs[1].LogoURL)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadSnapshot(path)
	assert.Error(t, err)
	assert.Error(t, WriteSnapshot(path, nil))
}
