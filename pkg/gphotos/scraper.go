package gphotos

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
	"immichporter/pkg/prompt"
	"immichporter/pkg/session"
	"immichporter/pkg/store"
)

// storageClearer is implemented by sessions that can wipe site storage.
type storageClearer interface {
	ClearStorage(ctx context.Context) error
}

// Scraper ties the collector and walker together over one browser
// session and one record store.
type Scraper struct {
	session   session.Session
	store     *store.Store
	prompt    prompt.Prompter
	walker    *Walker
	collector *Collector
	log       logger.Logger
	cfg       *config.Config
}

func NewScraper(sess session.Session, st *store.Store, pr prompt.Prompter, cfg *config.Config, log logger.Logger) *Scraper {
	return &Scraper{
		session:   sess,
		store:     st,
		prompt:    pr,
		walker:    NewWalker(sess, st, pr, &cfg.Source, log),
		collector: NewCollector(sess, st, &cfg.Source, log),
		log:       log,
		cfg:       cfg,
	}
}

// Login opens the gallery and, when the browser gets bounced to a
// sign-in page, hands control to the operator until the gallery loads.
// With clear_storage set, site storage is wiped first so a stale or
// broken session starts over.
func (s *Scraper) Login(ctx context.Context) error {
	if s.cfg.Source.ClearStorage {
		if sc, ok := s.session.(storageClearer); ok {
			if err := sc.ClearStorage(ctx); err != nil {
				return err
			}
			s.log.Info("cleared site storage")
		}
	}

	base, err := url.Parse(s.cfg.Source.BaseURL)
	if err != nil {
		return errs.New(errs.ErrorTypeSession, "invalid base url %q: %v", s.cfg.Source.BaseURL, err)
	}

	for {
		if err := s.session.Navigate(ctx, s.cfg.Source.BaseURL); err != nil {
			return err
		}
		if err := s.session.WaitLoaded(ctx); err != nil {
			return err
		}
		current, err := s.session.CurrentURL(ctx)
		if err != nil {
			return err
		}
		if u, perr := url.Parse(current); perr == nil && u.Host == base.Host {
			s.log.InfoWithFields("signed in", map[string]interface{}{"url": current})
			return nil
		}
		s.log.InfoWithFields("not signed in", map[string]interface{}{"url": current})
		if err := s.prompt.Acknowledge(
			"Sign in to the gallery in the browser window, then press Enter."); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// CollectAlbums registers albums from the grid per the configured
// start position and cap.
func (s *Scraper) CollectAlbums(ctx context.Context) ([]AlbumInfo, error) {
	return s.collector.Collect(ctx, s.cfg.Source.MaxAlbums, s.cfg.Source.StartAlbum)
}

// ProcessAlbums walks every registered album that still has unprocessed
// items (all of them when fresh is set). Any failure inside one album,
// session failures included, is recorded against that album and the run
// moves on to the next; only cancellation ends the run.
func (s *Scraper) ProcessAlbums(ctx context.Context, fresh bool) (*RunSummary, error) {
	opts := store.ListAlbumsOptions{
		Limit:       s.cfg.Source.MaxAlbums,
		NotFinished: !fresh,
	}
	if s.cfg.Source.StartAlbum > 1 {
		opts.Offset = s.cfg.Source.StartAlbum - 1
	}
	albums, err := s.store.ListAlbums(ctx, opts)
	if err != nil {
		return nil, err
	}

	run := &RunSummary{}
	for _, album := range albums {
		summary, err := s.walker.Walk(ctx, album.ID, album.URL, album.Title, album.Items,
			WalkOptions{IgnoreComplete: fresh})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return run, err
			}
			msg := fmt.Sprintf("album %q: %v", album.Title, err)
			run.Errors = append(run.Errors, msg)
			if rerr := s.store.RecordError(ctx, msg, album.ID); rerr != nil {
				s.log.WithError(rerr).Error("could not record album error")
			}
			continue
		}
		run.AlbumsProcessed++
		run.NewPhotos += summary.NewPhotos
		if summary.Aborted {
			run.Errors = append(run.Errors, fmt.Sprintf("album %q aborted", album.Title))
		}
	}

	s.log.InfoWithFields("scrape run finished", map[string]interface{}{
		"albums_processed": run.AlbumsProcessed,
		"new_photos":       run.NewPhotos,
		"errors":           len(run.Errors),
	})
	return run, nil
}
