package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ChromeConfig holds settings for launching Chrome.
type ChromeConfig struct {
	Headless     bool
	UserAgent    string
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	// IdleWindow is how long the network must stay idle to count as quiescent.
	IdleWindow time.Duration
	// ActionTimeout bounds every page operation that has no timeout of its own.
	ActionTimeout time.Duration
}

const defaultActionTimeout = 10 * time.Second

// ChromeRenderer launches a Chrome process per session via chromedp.
type ChromeRenderer struct {
	config ChromeConfig
	logger *slog.Logger
}

// NewChromeRenderer creates a new Chrome renderer.
func NewChromeRenderer(cfg ChromeConfig, logger *slog.Logger) *ChromeRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.WindowWidth == 0 || cfg.WindowHeight == 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1920, 1080
	}
	if cfg.IdleWindow == 0 {
		cfg.IdleWindow = 500 * time.Millisecond
	}
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = defaultActionTimeout
	}
	return &ChromeRenderer{
		config: cfg,
		logger: logger.With("component", "chrome_renderer"),
	}
}

// Open launches a browser and returns a session bound to its first tab.
// The session outlives ctx; it ends only on Close.
func (r *ChromeRenderer) Open(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", r.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-first-run", true),
		chromedp.UserAgent(r.config.UserAgent),
		chromedp.WindowSize(r.config.WindowWidth, r.config.WindowHeight),
	)
	if r.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.config.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		tabCtx:        tabCtx,
		cancel:        func() { tabCancel(); allocCancel() },
		tracker:       newNetworkTracker(),
		idle:          r.config.IdleWindow,
		actionTimeout: r.config.ActionTimeout,
		logger:        r.logger,
	}

	chromedp.ListenTarget(tabCtx, s.tracker.handle)

	// The first Run allocates the browser and ties its lifetime to the
	// context it is given, so it must run on tabCtx itself.
	stop := context.AfterFunc(ctx, s.cancel)
	err := chromedp.Run(tabCtx, network.Enable())
	stop()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	r.logger.Debug("browser session opened", "headless", r.config.Headless)
	return s, nil
}

type chromeSession struct {
	tabCtx  context.Context
	cancel  context.CancelFunc
	tracker *networkTracker
	idle    time.Duration
	logger  *slog.Logger

	actionTimeout time.Duration

	closeOnce sync.Once
	closed    bool
}

// timeoutFor returns timeout, or the session's action timeout when timeout
// is not positive.
func (s *chromeSession) timeoutFor(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	if s.actionTimeout > 0 {
		return s.actionTimeout
	}
	return defaultActionTimeout
}

// run executes actions on the tab, bounded by timeout (the action timeout
// when zero) and by ctx.
func (s *chromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if s.closed {
		return ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(s.tabCtx, s.timeoutFor(timeout))
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string, timeout time.Duration) (*Response, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	runCtx, cancel := context.WithTimeout(s.tabCtx, s.timeoutFor(timeout))
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}

	out := &Response{FinalURL: url}
	if resp != nil {
		out.Status = int(resp.Status)
		if resp.URL != "" {
			out.FinalURL = resp.URL
		}
	}

	var html, location string
	if err := chromedp.Run(runCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&location),
	); err != nil {
		return out, fmt.Errorf("read page %s: %w", url, err)
	}

	out.Content = html
	if location != "" {
		out.FinalURL = location
	}
	return out, nil
}

func (s *chromeSession) Find(ctx context.Context, loc Locator, timeout time.Duration) (Element, error) {
	query, isXPath := loc.Query()
	if query == "" {
		return nil, ErrNotFound
	}

	by := chromedp.ByQuery
	if isXPath {
		by = chromedp.BySearch
	}

	var nodes []*cdp.Node
	err := s.run(ctx, timeout, chromedp.Nodes(query, &nodes, by, chromedp.NodeReady))
	switch {
	case errors.Is(err, ErrSessionClosed):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil || len(nodes) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, loc)
	}

	return &chromeElement{session: s, node: nodes[0]}, nil
}

func (s *chromeSession) Evaluate(ctx context.Context, script string, out any) error {
	return s.run(ctx, 0, chromedp.Evaluate(script, out))
}

func (s *chromeSession) WaitQuiescent(ctx context.Context, timeout time.Duration) error {
	if s.closed {
		return ErrSessionClosed
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.tracker.idleFor() >= s.idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("network not idle after %s (%d requests in flight)", timeout, s.tracker.inflight())
		case <-ticker.C:
		}
	}
}

func (s *chromeSession) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) URL(ctx context.Context) (string, error) {
	var location string
	if err := s.run(ctx, 0, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

func (s *chromeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed = true
		s.cancel()
		s.logger.Debug("browser session closed")
	})
	return nil
}

type chromeElement struct {
	session *chromeSession
	node    *cdp.Node
}

func (e *chromeElement) ids() []cdp.NodeID {
	return []cdp.NodeID{e.node.NodeID}
}

func (e *chromeElement) Fill(ctx context.Context, text string) error {
	return e.session.run(ctx, 0,
		chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID),
		chromedp.Clear(e.ids(), chromedp.ByNodeID),
		chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID),
	)
}

func (e *chromeElement) Click(ctx context.Context) error {
	return e.session.run(ctx, 0,
		chromedp.ScrollIntoView(e.ids(), chromedp.ByNodeID),
		chromedp.Click(e.ids(), chromedp.ByNodeID),
	)
}

func (e *chromeElement) Select(ctx context.Context, value string) error {
	err := e.session.run(ctx, 0, chromedp.SetValue(e.ids(), value, chromedp.ByNodeID))
	if err == nil {
		return nil
	}
	// Options addressed by label rather than value.
	return e.session.run(ctx, 0, chromedp.SendKeys(e.ids(), value, chromedp.ByNodeID))
}

func (e *chromeElement) Press(ctx context.Context, key string) error {
	return e.session.run(ctx, 0, chromedp.SendKeys(e.ids(), keyCode(key), chromedp.ByNodeID))
}

// keyCode maps key names to chromedp key sequences.
func keyCode(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return kb.Enter
	case "tab":
		return kb.Tab
	case "escape", "esc":
		return kb.Escape
	case "end":
		return kb.End
	case "pagedown":
		return kb.PageDown
	default:
		return key
	}
}

// networkTracker counts in-flight requests from CDP network events.
type networkTracker struct {
	mu       sync.Mutex
	pending  map[network.RequestID]struct{}
	lastBusy time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		pending:  make(map[network.RequestID]struct{}),
		lastBusy: time.Now(),
	}
}

func (t *networkTracker) handle(ev any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.pending[e.RequestID] = struct{}{}
		t.lastBusy = time.Now()
	case *network.EventLoadingFinished:
		t.done(e.RequestID)
	case *network.EventLoadingFailed:
		t.done(e.RequestID)
	}
}

func (t *networkTracker) done(id network.RequestID) {
	if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		t.lastBusy = time.Now()
	}
}

func (t *networkTracker) inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// idleFor reports how long no request has been in flight.
func (t *networkTracker) idleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		return 0
	}
	return time.Since(t.lastBusy)
}
