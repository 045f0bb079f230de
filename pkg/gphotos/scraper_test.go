package gphotos

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
	"immichporter/pkg/prompt"
	"immichporter/pkg/session"
	"immichporter/pkg/store"
)

// loginFake serves a scripted sequence of current URLs, one per
// navigation, to model the sign-in redirect dance.
type loginFake struct {
	fakeSession
	urls    []string
	visits  int
	cleared bool
}

func (l *loginFake) Navigate(_ context.Context, url string) error {
	l.navigated = append(l.navigated, url)
	return nil
}

func (l *loginFake) CurrentURL(context.Context) (string, error) {
	i := l.visits
	if i >= len(l.urls) {
		i = len(l.urls) - 1
	}
	l.visits++
	return l.urls[i], nil
}

func (l *loginFake) ClearStorage(context.Context) error {
	l.cleared = true
	return nil
}

func (l *loginFake) FirstAttribute(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

var _ session.Session = (*loginFake)(nil)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Source = *testSourceConfig()
	return cfg
}

func TestLoginPromptsUntilSignedIn(t *testing.T) {
	sess := &loginFake{urls: []string{
		"https://accounts.example.com/signin?continue=photos",
		"https://accounts.example.com/signin?continue=photos",
		"https://photos.example.com/",
	}}
	pr := &prompt.AutoContinue{}

	s := NewScraper(sess, nil, pr, testConfig(), logger.GetLogger())
	err := s.Login(context.Background())

	require.NoError(t, err)
	assert.Len(t, pr.Messages, 2, "one prompt per redirect to the sign-in page")
	assert.Len(t, sess.navigated, 3)
}

func TestLoginAlreadySignedIn(t *testing.T) {
	sess := &loginFake{urls: []string{"https://photos.example.com/"}}
	pr := &prompt.AutoContinue{}

	s := NewScraper(sess, nil, pr, testConfig(), logger.GetLogger())
	err := s.Login(context.Background())

	require.NoError(t, err)
	assert.Empty(t, pr.Messages)
	assert.False(t, sess.cleared)
}

// brokenNavSession fails navigation to one URL with a session error.
type brokenNavSession struct {
	fakeSession
	failURL string
}

func (b *brokenNavSession) Navigate(ctx context.Context, url string) error {
	if url == b.failURL {
		return errs.New(errs.ErrorTypeSession, "browser connection lost")
	}
	return b.fakeSession.Navigate(ctx, url)
}

func TestProcessAlbumsRecordsSessionErrorAndContinues(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger.GetLogger())
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.UpsertAlbum(ctx, "Trip", "./album/trip", 2, false)
	require.NoError(t, err)
	_, err = st.UpsertAlbum(ctx, "Broken", "./album/broken", 3, false)
	require.NoError(t, err)

	sess := &brokenNavSession{
		fakeSession: *newFakeSession(
			&fakeItem{id: "a", filename: "a.jpg"},
			&fakeItem{id: "b", filename: "b.jpg"},
		),
		failURL: "https://photos.example.com/album/broken",
	}

	s := NewScraper(sess, st, &prompt.AutoContinue{}, testConfig(), logger.GetLogger())
	run, err := s.ProcessAlbums(ctx, false)

	require.NoError(t, err, "a dead session fails the album, not the run")
	assert.Equal(t, 1, run.AlbumsProcessed)
	assert.Equal(t, 2, run.NewPhotos)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "Broken")

	stats, err := st.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalErrors)
	found := false
	for _, a := range stats.Albums {
		if a.Title == "Broken" {
			found = true
			assert.Equal(t, 1, a.ErrorCount, "the session error is recorded against the failing album")
		}
	}
	assert.True(t, found)
}

func TestLoginClearsStorageWhenConfigured(t *testing.T) {
	sess := &loginFake{urls: []string{"https://photos.example.com/"}}
	cfg := testConfig()
	cfg.Source.ClearStorage = true

	s := NewScraper(sess, nil, &prompt.AutoContinue{}, cfg, logger.GetLogger())
	err := s.Login(context.Background())

	require.NoError(t, err)
	assert.True(t, sess.cleared)
}
