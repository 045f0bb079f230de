package gphotos

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
	"immichporter/pkg/retry"
	"immichporter/pkg/session"
)

const (
	selectorFilename = `div[aria-label*="Filename"]`
	selectorDate     = `div[aria-label*="Date taken"]`
	selectorTime     = `span[aria-label*="Time taken"]`
	sharedByPrefix   = "Shared by"

	fieldPollInterval = 50 * time.Millisecond
)

// Extractor reads the open info panel of the photo currently on screen.
// A single Extract call makes one attempt per field; retrying with page
// reloads is the walker's job.
type Extractor struct {
	session      session.Session
	log          logger.Logger
	fieldTimeout time.Duration
}

func NewExtractor(sess session.Session, cfg *config.SourceConfig, log logger.Logger) *Extractor {
	return &Extractor{
		session:      sess,
		log:          log,
		fieldTimeout: cfg.FieldTimeout,
	}
}

// Extract returns the picture record for the item currently displayed.
// The filename is the one required field: when it never becomes visible
// within the field timeout, Extract fails with a transient UI error so
// the caller can reload and retry. Date and attribution degrade to
// absent values instead of failing.
func (e *Extractor) Extract(ctx context.Context) (*PictureInfo, error) {
	filename, err := e.pollField(ctx, selectorFilename, "")
	if err != nil {
		return nil, err
	}
	if filename == "" {
		return nil, errs.New(errs.ErrorTypeTransientUI, "filename not visible in info panel")
	}

	sourceID, err := e.sourceID(ctx)
	if err != nil {
		return nil, err
	}

	pic := &PictureInfo{
		Filename: filename,
		SourceID: sourceID,
	}

	dateText, err := e.pollField(ctx, selectorDate, "")
	if err != nil {
		return nil, err
	}
	timeText, err := e.readField(ctx, selectorTime, "")
	if err != nil {
		return nil, err
	}
	if dateText != "" {
		pic.DateTaken = e.parseTaken(dateText, timeText)
	}

	// attribution is absent for the owner's own photos, so one query only
	owner, err := e.readField(ctx, "div", sharedByPrefix)
	if err != nil {
		return nil, err
	}
	if owner != "" {
		pic.Owner = strings.TrimSpace(strings.TrimPrefix(owner, sharedByPrefix))
	}

	return pic, nil
}

// pollField repeatedly queries for a visible element matching selector
// (and, when containing is set, whose text contains it) until the field
// timeout elapses. Exactly one visible match is required: zero or
// several both read as "not there yet", since a duplicated label means
// the panel is mid-transition.
func (e *Extractor) pollField(ctx context.Context, selector, containing string) (string, error) {
	deadline := time.Now().Add(e.fieldTimeout)
	for {
		texts, err := e.session.VisibleTexts(ctx, selector, containing)
		if err != nil {
			return "", err
		}
		if len(texts) == 1 {
			return strings.TrimSpace(texts[0]), nil
		}
		if len(texts) > 1 {
			e.log.DebugWithFields("ambiguous field match", map[string]interface{}{
				"selector": selector,
				"matches":  len(texts),
			})
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		if err := retry.Wait(ctx, fieldPollInterval); err != nil {
			return "", err
		}
	}
}

// readField is a single non-polling query for an optional field.
func (e *Extractor) readField(ctx context.Context, selector, containing string) (string, error) {
	texts, err := e.session.VisibleTexts(ctx, selector, containing)
	if err != nil {
		return "", err
	}
	if len(texts) != 1 {
		return "", nil
	}
	return strings.TrimSpace(texts[0]), nil
}

// sourceID derives the stable item identifier from the current URL:
// the last path segment, stripped of any query string.
func (e *Extractor) sourceID(ctx context.Context) (string, error) {
	raw, err := e.session.CurrentURL(ctx)
	if err != nil {
		return "", err
	}
	if u, err := url.Parse(raw); err == nil {
		raw = u.Path
	}
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	if j := strings.IndexByte(raw, '?'); j >= 0 {
		raw = raw[:j]
	}
	return raw, nil
}

func (e *Extractor) parseTaken(dateText, timeText string) *time.Time {
	combined := dateText
	if timeText != "" {
		// time label carries a weekday prefix like "Sat, 11:47 AM"
		if _, rest, ok := strings.Cut(timeText, ","); ok {
			timeText = strings.TrimSpace(rest)
		}
		combined = dateText + " " + timeText
	}
	ts, err := dateparse.ParseLocal(combined)
	if err != nil {
		e.log.WarnWithFields("could not parse taken-at text", map[string]interface{}{
			"text":  combined,
			"error": err.Error(),
		})
		return nil
	}
	return &ts
}
