package gphotos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
	"immichporter/pkg/retry"
	"immichporter/pkg/session"
)

// Collector walks the albums grid with arrow keys and registers each
// album it lands on in the record store. Albums already known by title
// are left untouched so declared counts from a finished run survive.
type Collector struct {
	session session.Session
	store   AlbumRegistry
	log     logger.Logger
	cfg     *config.SourceConfig

	// gridSettle is how long the grid gets to render after navigation
	gridSettle time.Duration
	// stepDelay paces the arrow-key walk
	stepDelay time.Duration
}

func NewCollector(sess session.Session, st AlbumRegistry, cfg *config.SourceConfig, log logger.Logger) *Collector {
	return &Collector{
		session:    sess,
		store:      st,
		log:        log,
		cfg:        cfg,
		gridSettle: time.Second,
		stepDelay:  200 * time.Millisecond,
	}
}

// Collect visits the albums grid and returns the albums newly added to
// the store, in grid order. maxAlbums caps how many grid positions are
// visited (0 means no cap); startAlbum is the 1-based position to start
// from. The walk stops early when the focused album's URL repeats, which
// means the focus wrapped around the end of the grid.
func (c *Collector) Collect(ctx context.Context, maxAlbums, startAlbum int) ([]AlbumInfo, error) {
	if err := c.session.Navigate(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/albums"); err != nil {
		return nil, err
	}
	if err := c.session.WaitLoaded(ctx); err != nil {
		return nil, err
	}
	if err := retry.Wait(ctx, c.gridSettle); err != nil {
		return nil, err
	}

	// first press moves focus onto the first album tile
	if err := c.step(ctx); err != nil {
		return nil, err
	}
	for i := 1; i < startAlbum; i++ {
		if err := c.step(ctx); err != nil {
			return nil, err
		}
	}

	var (
		collected []AlbumInfo
		lastURL   string
	)
	for visited := 0; maxAlbums == 0 || visited < maxAlbums; visited++ {
		if visited > 0 {
			if err := c.step(ctx); err != nil {
				return collected, err
			}
		}

		item, err := c.session.FocusedItem(ctx)
		if err != nil {
			return collected, err
		}

		info, err := c.parseTile(item.Href, item.Text)
		if err != nil {
			c.log.WithError(err).InfoWithFields("focused element is not an album tile, stopping", map[string]interface{}{
				"position": startAlbum + visited,
			})
			break
		}
		if info.URL == lastURL {
			c.log.Debug("grid focus wrapped around, stopping")
			break
		}
		lastURL = info.URL

		exists, err := c.store.AlbumExists(ctx, info.Title)
		if err != nil {
			return collected, err
		}
		if exists {
			c.log.DebugWithFields("album already registered", map[string]interface{}{
				"album": info.Title,
			})
			continue
		}

		if _, err := c.store.UpsertAlbum(ctx, info.Title, info.URL, info.Items, info.Shared); err != nil {
			return collected, err
		}
		collected = append(collected, *info)
		c.log.InfoWithFields("album registered", map[string]interface{}{
			"album":  info.Title,
			"items":  info.Items,
			"shared": info.Shared,
		})
	}

	return collected, nil
}

func (c *Collector) step(ctx context.Context) error {
	return c.session.SendKey(ctx, keyNext, c.stepDelay)
}

// parseTile splits a tile's accessible text into title and description.
// The description line reads like "123 items · Shared"; a tile without
// one is not an album.
func (c *Collector) parseTile(href, text string) (*AlbumInfo, error) {
	title, desc, ok := strings.Cut(text, "\n")
	if !ok || strings.TrimSpace(desc) == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "no description line in %q", text)
	}
	title = strings.TrimSpace(title)
	desc = strings.TrimSpace(desc)

	items := 0
	if fields := strings.Fields(desc); len(fields) > 0 {
		n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
		if err != nil {
			return nil, errs.New(errs.ErrorTypeParsing, "no item count in %q", desc)
		}
		items = n
	}

	if href == "" {
		return nil, errs.New(errs.ErrorTypeParsing, "album tile %q has no link", title)
	}

	return &AlbumInfo{
		Title:  title,
		Items:  items,
		Shared: strings.Contains(strings.ToLower(desc), "shared"),
		URL:    c.tileURL(href),
	}, nil
}

func (c *Collector) tileURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	href = strings.TrimPrefix(href, ".")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + href
}
