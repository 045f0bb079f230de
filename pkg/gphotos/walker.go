package gphotos

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
	"immichporter/pkg/prompt"
	"immichporter/pkg/retry"
	"immichporter/pkg/session"
)

const (
	selectorFirstPhoto = `a[aria-label*="Photo -"]`
	firstPhotoTimeout  = 5 * time.Second

	keyNext     = "ArrowRight"
	keyInfoPane = "i"
)

// ownerUnknown matches attribution values the panel renders when the
// sharer's name is not available.
func ownerUnknown(owner string) bool {
	switch strings.ToLower(owner) {
	case "", "n/a", "unknown":
		return true
	}
	return false
}

// WalkOptions adjusts a single walk.
type WalkOptions struct {
	// IgnoreComplete walks the album even when the stored progress says
	// every declared item has already been processed.
	IgnoreComplete bool
}

// Walker advances through an album one item at a time, extracting each
// picture and committing it to the record store before moving on. It is
// resumable: progress is persisted after every accepted item, and a new
// walk fast-forwards past items a previous run already handled.
type Walker struct {
	session   session.Session
	store     RecordStore
	prompt    prompt.Prompter
	extractor *Extractor
	log       logger.Logger
	cfg       *config.SourceConfig
}

func NewWalker(sess session.Session, st RecordStore, pr prompt.Prompter, cfg *config.SourceConfig, log logger.Logger) *Walker {
	return &Walker{
		session:   sess,
		store:     st,
		prompt:    pr,
		extractor: NewExtractor(sess, cfg, log),
		log:       log,
		cfg:       cfg,
	}
}

// Walk processes one album. It opens the album, fast-forwards past
// already-processed items, then extracts and commits each remaining item
// until the declared count is reached or the end-of-album heuristic
// fires. Fatal extraction failures abort the album (recorded, summary
// flagged) without failing the run; session errors propagate.
func (w *Walker) Walk(ctx context.Context, albumID int64, navURL, title string, declared int, opts WalkOptions) (*WalkSummary, error) {
	summary := &WalkSummary{}

	_, processed, err := w.store.GetProgress(ctx, albumID)
	if err != nil {
		return summary, err
	}
	if processed >= declared && !opts.IgnoreComplete {
		w.log.InfoWithFields("album already complete, skipping", map[string]interface{}{
			"album":     title,
			"processed": processed,
			"declared":  declared,
		})
		return summary, nil
	}

	w.log.InfoWithFields("walking album", map[string]interface{}{
		"album":     title,
		"declared":  declared,
		"processed": processed,
	})

	if err := w.openFirstPhoto(ctx, navURL); err != nil {
		return summary, err
	}

	cursor := &walkCursor{}
	if err := w.seek(ctx, cursor, processed); err != nil {
		return summary, err
	}

	users := make(map[string]struct{})

	for processed < declared {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		pic, err := w.extractWithRecovery(ctx, cursor.logicalPosition)
		if err != nil {
			var typed *errs.Error
			if errors.As(err, &typed) && typed.Type == errs.ErrorTypeExtractionFatal {
				msg := fmt.Sprintf("extraction failed at position %d: %v", cursor.logicalPosition+1, err)
				if rerr := w.store.RecordError(ctx, msg, albumID); rerr != nil {
					w.log.WithError(rerr).Error("could not record extraction error")
				}
				w.log.ErrorWithFields("aborting album after fatal extraction failure", map[string]interface{}{
					"album":    title,
					"position": cursor.logicalPosition + 1,
				})
				summary.Aborted = true
				break
			}
			return summary, err
		}

		if pic.SourceID != "" && pic.SourceID == cursor.lastSeenSourceID {
			cursor.repeatCount++
			if cursor.repeatCount >= w.cfg.DuplicateThreshold {
				w.log.WarnWithFields("item repeated past hard threshold, treating as end of album", map[string]interface{}{
					"album":     title,
					"source_id": pic.SourceID,
					"repeats":   cursor.repeatCount,
					"processed": processed,
					"declared":  declared,
				})
				break
			}
			if cursor.repeatCount >= w.cfg.DuplicateLogThreshold {
				if err := retry.Wait(ctx, w.cfg.ExtractRetryDelay); err != nil {
					return summary, err
				}
				w.log.WarnWithFields("navigation appears stuck", map[string]interface{}{
					"album":     title,
					"source_id": pic.SourceID,
					"repeats":   cursor.repeatCount,
				})
				if err := w.prompt.Acknowledge(fmt.Sprintf(
					"Navigation in album %q seems stuck on %s. Check the browser window, then press Enter to continue.",
					title, pic.Filename)); err != nil {
					return summary, err
				}
			}
			// the previous keypress was most likely swallowed, resend it
			if err := w.session.SendKey(ctx, keyNext, w.cfg.ImageNavigationDelay); err != nil {
				return summary, err
			}
			if err := retry.Wait(ctx, 3*w.cfg.ImageNavigationDelay); err != nil {
				return summary, err
			}
			continue
		}
		cursor.lastSeenSourceID = pic.SourceID
		cursor.repeatCount = 0
		cursor.logicalPosition++

		var userID int64
		if !ownerUnknown(pic.Owner) {
			userID, err = w.store.UpsertUser(ctx, pic.Owner)
			if err == nil {
				err = w.store.LinkUserAlbum(ctx, userID, albumID)
			}
			if err != nil {
				return summary, err
			}
			users[pic.Owner] = struct{}{}
		}

		id, inserted, err := w.store.InsertPhoto(ctx, albumID, userID, pic.SourceID, pic.Filename, pic.DateTaken)
		switch {
		case err != nil:
			msg := fmt.Sprintf("could not save %s (position %d): %v", pic.Filename, cursor.logicalPosition, err)
			if rerr := w.store.RecordError(ctx, msg, albumID); rerr != nil {
				w.log.WithError(rerr).Error("could not record save error")
			}
			w.log.WithError(err).WarnWithFields("photo not saved", map[string]interface{}{
				"album":    title,
				"filename": pic.Filename,
			})
		case !inserted:
			w.log.DebugWithFields("photo already recorded, skipping", map[string]interface{}{
				"album":     title,
				"filename":  pic.Filename,
				"source_id": pic.SourceID,
			})
		default:
			processed++
			summary.NewPhotos++
			if err := w.store.SetProgress(ctx, albumID, processed); err != nil {
				return summary, err
			}
			w.log.DebugWithFields("photo recorded", map[string]interface{}{
				"album":     title,
				"filename":  pic.Filename,
				"photo_id":  id,
				"processed": processed,
				"declared":  declared,
			})
		}

		if err := w.session.SendKey(ctx, keyNext, w.cfg.ImageNavigationDelay); err != nil {
			return summary, err
		}
	}

	for name := range users {
		summary.AssociatedUsers = append(summary.AssociatedUsers, name)
	}
	sort.Strings(summary.AssociatedUsers)

	w.log.InfoWithFields("album walk finished", map[string]interface{}{
		"album":      title,
		"new_photos": summary.NewPhotos,
		"processed":  processed,
		"declared":   declared,
		"aborted":    summary.Aborted,
	})
	return summary, nil
}

// openFirstPhoto navigates to the album page and drops into the single
// photo view on the album's first item.
func (w *Walker) openFirstPhoto(ctx context.Context, navURL string) error {
	if err := w.session.Navigate(ctx, w.absoluteURL(navURL)); err != nil {
		return err
	}
	if err := w.session.WaitLoaded(ctx); err != nil {
		return err
	}
	if w.cfg.AlbumNavigationDelay > 0 {
		if err := retry.Wait(ctx, w.cfg.AlbumNavigationDelay); err != nil {
			return err
		}
	}

	href, err := w.session.FirstAttribute(ctx, selectorFirstPhoto, "href", firstPhotoTimeout)
	if err != nil {
		return err
	}
	if href == "" {
		if err := w.prompt.Acknowledge(
			"Could not find the album's first photo. Open it manually in the browser, then press Enter."); err != nil {
			return err
		}
		return nil
	}

	if err := w.session.Navigate(ctx, w.absoluteURL(href)); err != nil {
		return err
	}
	return w.session.WaitLoaded(ctx)
}

// seek fast-forwards past items already committed by an earlier run.
// No extraction happens here, just keypresses.
func (w *Walker) seek(ctx context.Context, cursor *walkCursor, processed int) error {
	if processed == 0 {
		return nil
	}
	w.log.InfoWithFields("seeking past processed items", map[string]interface{}{
		"count": processed,
	})
	for cursor.logicalPosition < processed {
		if err := w.session.SendKey(ctx, keyNext, w.cfg.ImageNavigationDelay); err != nil {
			return err
		}
		cursor.logicalPosition++
	}
	return nil
}

// extractWithRecovery runs one extraction with a bounded retry loop.
// Each retry reloads the page first; on the second attempt the info
// panel is reopened with the "i" shortcut in case the reload closed it.
// Retry delays grow linearly with the attempt number.
func (w *Walker) extractWithRecovery(ctx context.Context, position int) (*PictureInfo, error) {
	pic, err := retry.DoWithResult(func() (*PictureInfo, error) {
		return w.extractor.Extract(ctx)
	}, &retry.Config{
		MaxAttempts: w.cfg.ExtractAttempts,
		Backoff: &retry.LinearBackoff{
			BaseDelay: w.cfg.ExtractRetryDelay,
			Increment: w.cfg.ExtractRetryDelay,
		},
		RetryIf: retry.DefaultRetryIf,
		OnRetry: func(attempt int, _ error, _ time.Duration) {
			if rerr := w.session.Reload(ctx); rerr != nil {
				w.log.WithError(rerr).Warn("reload between extraction attempts failed")
			}
			if attempt == 2 {
				if kerr := w.session.SendKey(ctx, keyInfoPane, w.cfg.ImageNavigationDelay); kerr != nil {
					w.log.WithError(kerr).Warn("could not reopen info panel")
				}
			}
		},
		Context: ctx,
		Logger:  w.log,
	})
	if err == nil {
		return pic, nil
	}

	var typed *errs.Error
	if errors.As(err, &typed) && typed.Type == errs.ErrorTypeSession {
		return nil, err
	}
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	return nil, errs.New(errs.ErrorTypeExtractionFatal,
		"no usable info panel at position %d after %d attempts: %v", position+1, w.cfg.ExtractAttempts, err)
}

func (w *Walker) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	href = strings.TrimPrefix(href, ".")
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return strings.TrimRight(w.cfg.BaseURL, "/") + href
}
