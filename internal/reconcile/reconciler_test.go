package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immichporter/pkg/config"
	"immichporter/pkg/immich"
	"immichporter/pkg/logger"
	"immichporter/pkg/store"
)

// fakeSearcher answers searches from a fixed filename index and records
// the windows it was queried with.
type fakeSearcher struct {
	mu      sync.Mutex
	assets  map[string][]immich.Asset
	windows map[string][2]*time.Time
	fail    map[string]bool
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		assets:  map[string][]immich.Asset{},
		windows: map[string][2]*time.Time{},
		fail:    map[string]bool{},
	}
}

func (f *fakeSearcher) SearchAssets(_ context.Context, filename string, after, before *time.Time) ([]immich.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows[filename] = [2]*time.Time{after, before}
	if f.fail[filename] {
		return nil, fmt.Errorf("boom")
	}
	return f.assets[filename], nil
}

// fakeMatchStore records applied batches
type fakeMatchStore struct {
	mu      sync.Mutex
	photos  []store.Photo
	batches [][]store.AssetMatch
}

func (f *fakeMatchStore) PhotosWithoutAsset(context.Context) ([]store.Photo, error) {
	return f.photos, nil
}

func (f *fakeMatchStore) ApplyMatches(_ context.Context, matches []store.AssetMatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]store.AssetMatch, len(matches))
	copy(batch, matches)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeMatchStore) applied() map[int64]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[int64]string{}
	for _, batch := range f.batches {
		for _, m := range batch {
			out[m.PhotoID] = m.ImmichID
		}
	}
	return out
}

func testReconcileConfig() *config.ReconcileConfig {
	return &config.ReconcileConfig{
		Workers:           5,
		BatchSize:         20,
		RequestsPerMinute: 10000,
	}
}

func taken(t time.Time) *time.Time { return &t }

func TestRunMatchesExactlyOneAsset(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.assets["a.jpg"] = []immich.Asset{{ID: "asset-a"}}
	searcher.assets["many.jpg"] = []immich.Asset{{ID: "x"}, {ID: "y"}}
	// "none.jpg" has no entry

	st := &fakeMatchStore{photos: []store.Photo{
		{ID: 1, Filename: "a.jpg"},
		{ID: 2, Filename: "none.jpg"},
		{ID: 3, Filename: "many.jpg"},
	}}

	summary, err := New(st, searcher, testReconcileConfig(), logger.GetLogger()).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Unmatched)
	assert.Equal(t, 1, summary.Ambiguous)
	assert.Equal(t, 0, summary.Errors)
	assert.Equal(t, map[int64]string{1: "asset-a"}, st.applied())
}

func TestRunUsesTakenWindow(t *testing.T) {
	searcher := newFakeSearcher()
	full := time.Date(2021, 8, 12, 10, 15, 0, 0, time.Local)
	dateOnly := time.Date(2021, 8, 12, 0, 0, 0, 0, time.Local)

	st := &fakeMatchStore{photos: []store.Photo{
		{ID: 1, Filename: "full.jpg", DateTaken: taken(full)},
		{ID: 2, Filename: "day.jpg", DateTaken: taken(dateOnly)},
		{ID: 3, Filename: "undated.jpg"},
	}}

	_, err := New(st, searcher, testReconcileConfig(), logger.GetLogger()).Run(context.Background())
	require.NoError(t, err)

	w := searcher.windows["full.jpg"]
	require.NotNil(t, w[0])
	assert.Equal(t, full.Add(-2*time.Hour), *w[0])
	assert.Equal(t, full.Add(2*time.Hour), *w[1])

	w = searcher.windows["day.jpg"]
	require.NotNil(t, w[0])
	assert.Equal(t, dateOnly, *w[0])
	assert.Equal(t, dateOnly.AddDate(0, 0, 1), *w[1])

	w = searcher.windows["undated.jpg"]
	assert.Nil(t, w[0], "a photo without a date searches by filename alone")
	assert.Nil(t, w[1])
}

func TestRunFlushesInBatches(t *testing.T) {
	searcher := newFakeSearcher()
	var photos []store.Photo
	for i := 1; i <= 7; i++ {
		name := fmt.Sprintf("p%d.jpg", i)
		searcher.assets[name] = []immich.Asset{{ID: fmt.Sprintf("asset-%d", i)}}
		photos = append(photos, store.Photo{ID: int64(i), Filename: name})
	}
	st := &fakeMatchStore{photos: photos}

	cfg := testReconcileConfig()
	cfg.BatchSize = 3
	summary, err := New(st, searcher, cfg, logger.GetLogger()).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, summary.Matched)
	assert.Len(t, st.applied(), 7)
	require.GreaterOrEqual(t, len(st.batches), 3)
	for _, batch := range st.batches {
		assert.LessOrEqual(t, len(batch), 3)
	}
}

func TestRunCountsSearchErrors(t *testing.T) {
	searcher := newFakeSearcher()
	searcher.assets["ok.jpg"] = []immich.Asset{{ID: "asset-ok"}}
	searcher.fail["bad.jpg"] = true

	st := &fakeMatchStore{photos: []store.Photo{
		{ID: 1, Filename: "ok.jpg"},
		{ID: 2, Filename: "bad.jpg"},
	}}

	summary, err := New(st, searcher, testReconcileConfig(), logger.GetLogger()).Run(context.Background())

	require.NoError(t, err, "a failed lookup never fails the run")
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Errors)
}

func TestRunNothingToDo(t *testing.T) {
	summary, err := New(&fakeMatchStore{}, newFakeSearcher(), testReconcileConfig(), logger.GetLogger()).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, summary.Scanned)
	assert.Empty(t, (&fakeMatchStore{}).batches)
}
