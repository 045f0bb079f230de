// Package immich is a thin client for the destination server's HTTP API.
// It covers only what the importer needs: listing albums, searching
// assets by metadata and a connectivity check.
package immich

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
	"immichporter/pkg/retry"
)

const defaultMaxRetries = 3

// Client talks to one Immich server
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	logger     logger.Logger
}

// NewClient creates an API client from the Immich configuration. The
// endpoint may be given with or without the /api suffix.
func NewClient(cfg *config.ImmichConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	transport := http.DefaultTransport
	if cfg.Insecure {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		headers: map[string]string{
			"x-api-key": cfg.APIKey,
			"Accept":    "application/json",
		},
		baseURL: NormalizeEndpoint(cfg.Endpoint),
		logger:  log,
	}
}

// NormalizeEndpoint trims trailing slashes and appends the /api base
// path when it is missing.
func NormalizeEndpoint(endpoint string) string {
	base := strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(base, "/api") {
		base += "/api"
	}
	return base
}

// BaseURL returns the normalized API base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks connectivity and key validity
func (c *Client) Ping(ctx context.Context) error {
	var out pingResponse
	if err := c.getJSON(ctx, "/server/ping", &out); err != nil {
		return err
	}
	if out.Res != "pong" {
		return errs.New(errs.ErrorTypeServerError, "unexpected ping response %q", out.Res)
	}
	return nil
}

// GetAllAlbums lists albums sorted by name. shared filters by shared
// status when non-nil; limit caps the result when positive.
func (c *Client) GetAllAlbums(ctx context.Context, shared *bool, limit int) ([]Album, error) {
	path := "/albums"
	if shared != nil {
		path += fmt.Sprintf("?shared=%t", *shared)
	}

	var albums []Album
	if err := c.getJSON(ctx, path, &albums); err != nil {
		return nil, err
	}

	sort.Slice(albums, func(i, j int) bool {
		return strings.ToLower(albums[i].AlbumName) < strings.ToLower(albums[j].AlbumName)
	})
	if limit > 0 && len(albums) > limit {
		albums = albums[:limit]
	}
	return albums, nil
}

// SearchAssets finds assets by original filename, optionally narrowed
// to a taken-at window.
func (c *Client) SearchAssets(ctx context.Context, filename string, after, before *time.Time) ([]Asset, error) {
	body := metadataSearch{
		OriginalFileName: filename,
		TakenAfter:       after,
		TakenBefore:      before,
	}

	var out searchResponse
	if err := c.postJSON(ctx, "/search/metadata", body, &out); err != nil {
		return nil, err
	}
	return out.Assets.Items, nil
}

// TakenWindow converts a photo's taken-at timestamp into the search
// window used for matching. A midnight timestamp is read as date-only
// precision and widens to the whole day; otherwise the window is the
// timestamp plus or minus two hours.
func TakenWindow(taken time.Time) (after, before time.Time) {
	if taken.Hour() == 0 && taken.Minute() == 0 && taken.Second() == 0 {
		return taken, taken.AddDate(0, 0, 1)
	}
	return taken.Add(-2 * time.Hour), taken.Add(2 * time.Hour)
}

func (c *Client) getJSON(ctx context.Context, path string, target interface{}) error {
	return c.requestJSON(ctx, http.MethodGet, path, nil, target)
}

func (c *Client) postJSON(ctx context.Context, path string, body, target interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown, "failed to encode request body: %v", err)
	}
	return c.requestJSON(ctx, http.MethodPost, path, payload, target)
}

// requestJSON performs one API call with bounded retries on network and
// server errors. The request is rebuilt per attempt so the body can be
// resent.
func (c *Client) requestJSON(ctx context.Context, method, path string, payload []byte, target interface{}) error {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WarnWithFields("retrying API request", map[string]interface{}{
				"method":  method,
				"url":     url,
				"attempt": attempt,
				"error":   lastErr.Error(),
			})
			if err := retry.Wait(ctx, time.Second*time.Duration(attempt)); err != nil {
				return err
			}
		}

		err := c.once(ctx, method, url, payload, target)
		if err == nil {
			return nil
		}
		lastErr = err

		var typed *errs.Error
		if errors.As(err, &typed) && errs.IsRetryable(typed.Type) {
			continue
		}
		return err
	}

	c.logger.ErrorWithFields("max API retries exceeded", map[string]interface{}{
		"method":     method,
		"url":        url,
		"last_error": lastErr.Error(),
	})
	return lastErr
}

func (c *Client) once(ctx context.Context, method, url string, payload []byte, target interface{}) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errs.New(errs.ErrorTypeUnknown, "failed to create request: %v", err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errs.New(errs.ErrorTypeNetwork, "network error: %v", err)
	}
	defer resp.Body.Close()

	c.logger.DebugWithFields("API request completed", map[string]interface{}{
		"method":   method,
		"url":      url,
		"status":   resp.StatusCode,
		"duration": duration,
	})

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.NewWithCode(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body: %v", err)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		preview := string(raw)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"body_preview": preview,
			"error":        err.Error(),
		})
		return errs.NewWithCode(errs.ErrorTypeParsing, resp.StatusCode, "failed to parse response: %v", err)
	}
	return nil
}

func checkStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return errs.NewWithCode(errs.ErrorTypeAuth, code, "authentication rejected")
	case code == http.StatusNotFound:
		return errs.NewWithCode(errs.ErrorTypeNotFound, code, "not found")
	case code == http.StatusTooManyRequests:
		return errs.NewWithCode(errs.ErrorTypeRateLimit, code, "rate limited")
	case code >= 500:
		return errs.NewWithCode(errs.ErrorTypeServerError, code, "server returned status %d", code)
	default:
		return errs.NewWithCode(errs.ErrorTypeUnknown, code, "unexpected status %d", code)
	}
}
