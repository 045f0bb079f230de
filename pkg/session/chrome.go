package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
)

// Config holds browser launch options
type Config struct {
	// UserDataDir is the persistent profile directory; keeping it between
	// runs preserves the operator's login session.
	UserDataDir    string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
}

// The gallery fingerprints automated browsers; these flags and the init
// script below make the session look like a regular interactive one.
var stealthFlags = []chromedp.ExecAllocatorOption{
	chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
	chromedp.Flag("disable-blink-features", "AutomationControlled"),
	chromedp.Flag("disable-infobars", true),
	chromedp.Flag("disable-extensions", true),
	chromedp.Flag("disable-session-crashed-bubble", true),
	chromedp.Flag("disable-restore-session-state", true),
}

const stealthInitScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US','en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1,2,3,4,5] });
window.chrome = window.chrome || { runtime: {} };
`

// Chrome is a chromedp-backed Session
type Chrome struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	config      Config
	logger      logger.Logger
	mu          sync.Mutex
}

var _ Session = (*Chrome)(nil)

// NewChrome launches a browser with a persistent profile directory
func NewChrome(cfg Config, log logger.Logger) (*Chrome, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.ViewportWidth == 0 {
		cfg.ViewportWidth = 1280
	}
	if cfg.ViewportHeight == 0 {
		cfg.ViewportHeight = 720
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("ignore-certificate-errors", true),
	)
	opts = append(opts, stealthFlags...)
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		}),
	)

	c := &Chrome{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		config:      cfg,
		logger:      log.WithField("component", "chrome_session"),
	}

	// Install the stealth script so it runs before every document loads.
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthInitScript).Do(ctx)
		return err
	}))
	if err != nil {
		allocCancel()
		cancel()
		return nil, errs.New(errs.ErrorTypeSession, "failed to start browser: %v", err)
	}

	log.InfoWithFields("browser session started", map[string]interface{}{
		"headless":      cfg.Headless,
		"user_data_dir": cfg.UserDataDir,
	})
	return c, nil
}

// Navigate loads the given URL
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.DebugWithFields("navigating", map[string]interface{}{"url": url})
	if err := chromedp.Run(c.ctx, chromedp.Navigate(url)); err != nil {
		return errs.New(errs.ErrorTypeSession, "navigation to %s failed: %v", url, err)
	}
	return nil
}

// WaitLoaded blocks until the document body is ready
func (c *Chrome) WaitLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := chromedp.Run(c.ctx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return errs.New(errs.ErrorTypeSession, "wait for page load failed: %v", err)
	}
	return nil
}

// Reload reloads the current page
func (c *Chrome) Reload(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := chromedp.Run(c.ctx, chromedp.Reload(), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return errs.New(errs.ErrorTypeSession, "reload failed: %v", err)
	}
	return nil
}

// CurrentURL returns the page's current location
func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var url string
	if err := chromedp.Run(c.ctx, chromedp.Location(&url)); err != nil {
		return "", errs.New(errs.ErrorTypeSession, "failed to read current URL: %v", err)
	}
	return url, nil
}

// SendKey dispatches a keyboard key to the focused element
func (c *Chrome) SendKey(ctx context.Context, key string, postDelay time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.DebugWithFields("sending key", map[string]interface{}{"key": key})
	if err := chromedp.Run(c.ctx, dispatchKey(key)); err != nil {
		return errs.New(errs.ErrorTypeSession, "key dispatch %q failed: %v", key, err)
	}
	if postDelay > 0 {
		select {
		case <-time.After(postDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// namedKeys maps navigation key names to their DOM codes and virtual key codes
var namedKeys = map[string]struct {
	code string
	vk   int64
}{
	"ArrowRight": {"ArrowRight", 39},
	"ArrowLeft":  {"ArrowLeft", 37},
	"ArrowDown":  {"ArrowDown", 40},
	"ArrowUp":    {"ArrowUp", 38},
	"Enter":      {"Enter", 13},
	"Escape":     {"Escape", 27},
}

func dispatchKey(key string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if nk, ok := namedKeys[key]; ok {
			err := input.DispatchKeyEvent(input.KeyRawDown).
				WithKey(key).
				WithCode(nk.code).
				WithWindowsVirtualKeyCode(nk.vk).
				WithNativeVirtualKeyCode(nk.vk).
				Do(ctx)
			if err != nil {
				return err
			}
			return input.DispatchKeyEvent(input.KeyUp).
				WithKey(key).
				WithCode(nk.code).
				WithWindowsVirtualKeyCode(nk.vk).
				WithNativeVirtualKeyCode(nk.vk).
				Do(ctx)
		}

		for _, ch := range key {
			if err := input.DispatchKeyEvent(input.KeyChar).
				WithText(string(ch)).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// FocusedItem reads the currently focused element
func (c *Chrome) FocusedItem(ctx context.Context) (*FocusedItem, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var item struct {
		Href string `json:"href"`
		Text string `json:"text"`
	}
	js := `(() => {
		const e = document.activeElement;
		if (!e) return {href: '', text: ''};
		return {href: e.getAttribute('href') || '', text: e.innerText || ''};
	})()`
	if err := chromedp.Run(c.ctx, chromedp.Evaluate(js, &item)); err != nil {
		return nil, errs.New(errs.ErrorTypeSession, "failed to read focused element: %v", err)
	}
	return &FocusedItem{Href: item.Href, Text: item.Text}, nil
}

// VisibleTexts returns the visible inner texts matching the selector.
// The "innermost" filter mirrors text-based matching: when an ancestor and
// its child both contain the needle, only the child counts.
func (c *Chrome) VisibleTexts(ctx context.Context, selector, containing string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	js := fmt.Sprintf(`(() => {
		const needle = %s;
		const nodes = Array.from(document.querySelectorAll(%s));
		const visible = nodes.filter(e => e.offsetParent !== null);
		const matching = needle
			? visible.filter(e => (e.innerText || '').includes(needle))
			: visible;
		const innermost = matching.filter(e => !matching.some(o => o !== e && e.contains(o)));
		return innermost.map(e => (e.innerText || '').trim());
	})()`, jsString(containing), jsString(selector))

	var texts []string
	if err := chromedp.Run(c.ctx, chromedp.Evaluate(js, &texts)); err != nil {
		return nil, errs.New(errs.ErrorTypeSession, "failed to query %q: %v", selector, err)
	}
	return texts, nil
}

// FirstAttribute polls for the first element matching the selector and
// returns the given attribute, or "" when nothing appears in time.
func (c *Chrome) FirstAttribute(ctx context.Context, selector, attr string, timeout time.Duration) (string, error) {
	js := fmt.Sprintf(`(() => {
		const e = document.querySelector(%s);
		return e ? (e.getAttribute(%s) || '') : '';
	})()`, jsString(selector), jsString(attr))

	deadline := time.Now().Add(timeout)
	for {
		c.mu.Lock()
		var value string
		err := chromedp.Run(c.ctx, chromedp.Evaluate(js, &value))
		c.mu.Unlock()
		if err != nil {
			return "", errs.New(errs.ErrorTypeSession, "failed to query %q: %v", selector, err)
		}
		if value != "" {
			return value, nil
		}
		if time.Now().After(deadline) {
			return "", nil
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// ClearStorage clears site storage while preserving auth cookies
func (c *Chrome) ClearStorage(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("clearing browser storage")
	scripts := []string{
		`window.localStorage && window.localStorage.clear();`,
		`window.sessionStorage && window.sessionStorage.clear();`,
		`if (window.indexedDB && window.indexedDB.databases) {
			window.indexedDB.databases().then(dbs => dbs.forEach(db => window.indexedDB.deleteDatabase(db.name)));
		}`,
		`if ('caches' in window) {
			caches.keys().then(names => names.forEach(name => caches.delete(name)));
		}`,
	}
	for _, js := range scripts {
		if err := chromedp.Run(c.ctx, chromedp.Evaluate(js, nil)); err != nil {
			return errs.New(errs.ErrorTypeSession, "failed to clear storage: %v", err)
		}
	}
	return nil
}

// Close shuts down the browser and its allocator
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("closing browser session")
	c.cancel()
	c.allocCancel()
	return nil
}

// jsString quotes a Go string as a JavaScript string literal
func jsString(s string) string {
	return fmt.Sprintf("%q", strings.ReplaceAll(s, "</", "<\\/"))
}
