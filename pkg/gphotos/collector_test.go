package gphotos

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immichporter/pkg/logger"
	"immichporter/pkg/session"
)

// fakeGrid models the albums grid: ArrowRight moves focus from tile to
// tile and parks on the last one.
type fakeGrid struct {
	tiles []session.FocusedItem
	pos   int
	keys  int
}

var _ session.Session = (*fakeGrid)(nil)

func (g *fakeGrid) Navigate(context.Context, string) error { return nil }
func (g *fakeGrid) WaitLoaded(context.Context) error       { return nil }
func (g *fakeGrid) Reload(context.Context) error           { return nil }
func (g *fakeGrid) CurrentURL(context.Context) (string, error) {
	return "https://photos.example.com/albums", nil
}

func (g *fakeGrid) SendKey(_ context.Context, key string, _ time.Duration) error {
	if key == keyNext {
		g.keys++
		if g.keys > 1 && g.pos < len(g.tiles)-1 {
			// the first press only moves focus onto the first tile
			g.pos++
		}
	}
	return nil
}

func (g *fakeGrid) FocusedItem(context.Context) (*session.FocusedItem, error) {
	tile := g.tiles[g.pos]
	return &tile, nil
}

func (g *fakeGrid) VisibleTexts(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (g *fakeGrid) FirstAttribute(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

// fakeRegistry is an in-memory AlbumRegistry.
type fakeRegistry struct {
	albums map[string]AlbumInfo
	nextID int64
}

var _ AlbumRegistry = (*fakeRegistry)(nil)

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{albums: map[string]AlbumInfo{}}
}

func (r *fakeRegistry) AlbumExists(_ context.Context, title string) (bool, error) {
	_, ok := r.albums[title]
	return ok, nil
}

func (r *fakeRegistry) UpsertAlbum(_ context.Context, title, url string, items int, shared bool) (int64, error) {
	r.albums[title] = AlbumInfo{Title: title, URL: url, Items: items, Shared: shared}
	r.nextID++
	return r.nextID, nil
}

func newTestCollector(grid *fakeGrid, reg *fakeRegistry) *Collector {
	c := NewCollector(grid, reg, testSourceConfig(), logger.GetLogger())
	c.gridSettle = 0
	c.stepDelay = 0
	return c
}

func gridTiles(tiles ...session.FocusedItem) *fakeGrid {
	return &fakeGrid{tiles: tiles}
}

func TestCollectRegistersAlbums(t *testing.T) {
	grid := gridTiles(
		session.FocusedItem{Href: "./album/aaa", Text: "Summer\n23 items · Shared"},
		session.FocusedItem{Href: "./album/bbb", Text: "Hiking\n7 items"},
	)
	reg := newFakeRegistry()

	collected, err := newTestCollector(grid, reg).Collect(context.Background(), 0, 1)

	require.NoError(t, err)
	require.Len(t, collected, 2)
	assert.Equal(t, "Summer", collected[0].Title)
	assert.Equal(t, 23, collected[0].Items)
	assert.True(t, collected[0].Shared)
	assert.Equal(t, "https://photos.example.com/album/aaa", collected[0].URL)
	assert.Equal(t, "Hiking", collected[1].Title)
	assert.False(t, collected[1].Shared)
	assert.Len(t, reg.albums, 2)
}

func TestCollectStopsOnWrapAround(t *testing.T) {
	// focus parks on the last tile, so without a wrap check the walk
	// would register it forever
	grid := gridTiles(
		session.FocusedItem{Href: "./album/aaa", Text: "One\n3 items"},
		session.FocusedItem{Href: "./album/bbb", Text: "Two\n4 items"},
	)
	reg := newFakeRegistry()

	collected, err := newTestCollector(grid, reg).Collect(context.Background(), 0, 1)

	require.NoError(t, err)
	assert.Len(t, collected, 2)
}

func TestCollectHonorsMaxAlbums(t *testing.T) {
	grid := gridTiles(
		session.FocusedItem{Href: "./album/aaa", Text: "One\n3 items"},
		session.FocusedItem{Href: "./album/bbb", Text: "Two\n4 items"},
		session.FocusedItem{Href: "./album/ccc", Text: "Three\n5 items"},
	)
	reg := newFakeRegistry()

	collected, err := newTestCollector(grid, reg).Collect(context.Background(), 2, 1)

	require.NoError(t, err)
	assert.Len(t, collected, 2)
	assert.Len(t, reg.albums, 2)
}

func TestCollectStartsAtPosition(t *testing.T) {
	grid := gridTiles(
		session.FocusedItem{Href: "./album/aaa", Text: "One\n3 items"},
		session.FocusedItem{Href: "./album/bbb", Text: "Two\n4 items"},
		session.FocusedItem{Href: "./album/ccc", Text: "Three\n5 items"},
	)
	reg := newFakeRegistry()

	collected, err := newTestCollector(grid, reg).Collect(context.Background(), 0, 2)

	require.NoError(t, err)
	require.Len(t, collected, 2)
	assert.Equal(t, "Two", collected[0].Title)
	assert.Equal(t, "Three", collected[1].Title)
}

func TestCollectSkipsKnownAlbums(t *testing.T) {
	grid := gridTiles(
		session.FocusedItem{Href: "./album/aaa", Text: "One\n3 items"},
		session.FocusedItem{Href: "./album/bbb", Text: "Two\n4 items"},
	)
	reg := newFakeRegistry()
	reg.albums["One"] = AlbumInfo{Title: "One"}

	collected, err := newTestCollector(grid, reg).Collect(context.Background(), 0, 1)

	require.NoError(t, err)
	require.Len(t, collected, 1)
	assert.Equal(t, "Two", collected[0].Title)
}

func TestCollectStopsOnNonAlbumTile(t *testing.T) {
	grid := gridTiles(
		session.FocusedItem{Href: "./album/aaa", Text: "One\n3 items"},
		session.FocusedItem{Href: "", Text: "Create album"},
	)
	reg := newFakeRegistry()

	collected, err := newTestCollector(grid, reg).Collect(context.Background(), 0, 1)

	require.NoError(t, err)
	assert.Len(t, collected, 1)
}

func TestParseTileCommaCount(t *testing.T) {
	c := newTestCollector(gridTiles(), newFakeRegistry())

	info, err := c.parseTile("./album/x", "Everything\n1,204 items · Shared")

	require.NoError(t, err)
	assert.Equal(t, 1204, info.Items)
	assert.True(t, info.Shared)
}
