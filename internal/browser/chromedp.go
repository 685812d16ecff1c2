package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/ctxutil"
	"github.com/mrz1836/legion/internal/domain"
	legionerrors "github.com/mrz1836/legion/internal/errors"
)

// Options configures the chromedp-backed session.
type Options struct {
	// Headless runs the browser without a window.
	Headless bool

	// UserDataDir persists cookies and the game login across runs.
	UserDataDir string

	// NavTimeout bounds one navigation including document readiness.
	NavTimeout time.Duration

	// MaxHTMLBytes truncates captured page snapshots.
	MaxHTMLBytes int
}

// Chrome drives a local Chrome instance over CDP. It implements Session.
// Not safe for concurrent use; each worker owns exactly one.
type Chrome struct {
	browserCtx  context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc
	opts        Options
	logger      zerolog.Logger
	closed      bool
}

var _ Session = (*Chrome)(nil)

// NewChrome starts a browser. The returned session must be closed; Close
// tears the whole allocator down.
func NewChrome(ctx context.Context, opts Options, logger zerolog.Logger) (*Chrome, error) {
	if err := ctxutil.Canceled(ctx); err != nil {
		return nil, err
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = constants.DefaultNavTimeout
	}
	if opts.MaxHTMLBytes <= 0 {
		opts.MaxHTMLBytes = constants.DefaultMaxSnapshotBytes
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", opts.Headless))
	if opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(opts.UserDataDir))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx)

	// Starts the browser process eagerly so startup failures surface here.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelCtx()
		cancelAlloc()
		return nil, fmt.Errorf("%w: failed to start browser: %w", legionerrors.ErrConnectionFailure, err)
	}

	logger.Info().
		Bool("headless", opts.Headless).
		Str("user_data_dir", opts.UserDataDir).
		Msg("browser session started")

	return &Chrome{
		browserCtx:  browserCtx,
		cancelCtx:   cancelCtx,
		cancelAlloc: cancelAlloc,
		opts:        opts,
		logger:      logger.With().Str("component", "browser").Logger(),
	}, nil
}

// Navigate loads the URL and waits for the body to be ready, bounded by the
// navigation timeout.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.ready(ctx); err != nil {
		return err
	}

	runCtx, release := c.runCtx(ctx)
	defer release()
	navCtx, cancel := context.WithTimeout(runCtx, c.opts.NavTimeout)
	defer cancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: navigate %s: %w", legionerrors.ErrConnectionFailure, url, err)
	}
	return nil
}

// Resolve finds the single element matching the locator.
func (c *Chrome) Resolve(ctx context.Context, locator string) (Element, error) {
	if err := c.ready(ctx); err != nil {
		return Element{}, err
	}

	expr, opt := queryFor(locator)
	runCtx, release := c.runCtx(ctx)
	defer release()
	var nodes []*cdp.Node
	err := chromedp.Run(runCtx,
		chromedp.Nodes(expr, &nodes, opt, chromedp.AtLeast(0)),
	)
	if err != nil {
		return Element{}, fmt.Errorf("%w: resolve %q: %w", legionerrors.ErrConnectionFailure, locator, err)
	}

	switch len(nodes) {
	case 0:
		return Element{}, legionerrors.Wrapf(legionerrors.ErrElementNotFound, "locator %q", locator)
	case 1:
		return Element{
			Locator: locator,
			Tag:     strings.ToLower(nodes[0].NodeName),
			node:    nodes[0],
		}, nil
	default:
		return Element{}, legionerrors.Wrapf(legionerrors.ErrAmbiguousLocator, "locator %q matched %d elements", locator, len(nodes))
	}
}

// Count returns how many elements match the locator.
func (c *Chrome) Count(ctx context.Context, locator string) (int, error) {
	if err := c.ready(ctx); err != nil {
		return 0, err
	}

	expr, opt := queryFor(locator)
	runCtx, release := c.runCtx(ctx)
	defer release()
	var nodes []*cdp.Node
	err := chromedp.Run(runCtx,
		chromedp.Nodes(expr, &nodes, opt, chromedp.AtLeast(0)),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: count %q: %w", legionerrors.ErrConnectionFailure, locator, err)
	}
	return len(nodes), nil
}

// Perform runs the action against a resolved element.
func (c *Chrome) Perform(ctx context.Context, action Action, el Element) error {
	if err := c.ready(ctx); err != nil {
		return err
	}
	if el.Locator == "" {
		return legionerrors.Wrap(legionerrors.ErrEmptyValue, "element locator")
	}

	expr, opt := queryFor(el.Locator)
	var act chromedp.Action
	switch action.Kind {
	case ActionClick:
		if el.node != nil {
			act = chromedp.MouseClickNode(el.node)
		} else {
			act = chromedp.Click(expr, opt)
		}
	case ActionType:
		act = chromedp.SendKeys(expr, action.Text, opt)
	case ActionClear:
		act = chromedp.SetValue(expr, "", opt)
	case ActionSubmit:
		act = chromedp.Submit(expr, opt)
	default:
		return legionerrors.Wrapf(legionerrors.ErrActionFailed, "unknown action kind %q", action.Kind)
	}

	runCtx, release := c.runCtx(ctx)
	defer release()
	if err := chromedp.Run(runCtx, act); err != nil {
		return fmt.Errorf("%w: %s on %q: %w", legionerrors.ErrConnectionFailure, action.Kind, el.Locator, err)
	}
	return nil
}

// ReadText returns the element's visible text.
func (c *Chrome) ReadText(ctx context.Context, el Element) (string, error) {
	if err := c.ready(ctx); err != nil {
		return "", err
	}

	expr, opt := queryFor(el.Locator)
	runCtx, release := c.runCtx(ctx)
	defer release()
	var text string
	err := chromedp.Run(runCtx, chromedp.Text(expr, &text, opt))
	if err != nil {
		return "", fmt.Errorf("%w: read %q: %w", legionerrors.ErrConnectionFailure, el.Locator, err)
	}
	return text, nil
}

// Snapshot captures the current page, truncated to the HTML budget.
func (c *Chrome) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := c.ready(ctx); err != nil {
		return domain.Snapshot{}, err
	}

	runCtx, release := c.runCtx(ctx)
	defer release()
	var url, html string
	err := chromedp.Run(runCtx,
		chromedp.Location(&url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: capture snapshot: %w", legionerrors.ErrConnectionFailure, err)
	}

	if len(html) > c.opts.MaxHTMLBytes {
		html = html[:c.opts.MaxHTMLBytes]
	}
	return domain.Snapshot{
		ID:         "snap-" + uuid.New().String()[:8],
		URL:        url,
		HTML:       html,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// Screenshot captures the viewport as PNG.
func (c *Chrome) Screenshot(ctx context.Context) ([]byte, error) {
	if err := c.ready(ctx); err != nil {
		return nil, err
	}

	runCtx, release := c.runCtx(ctx)
	defer release()
	var png []byte
	err := chromedp.Run(runCtx, chromedp.CaptureScreenshot(&png))
	if err != nil {
		return nil, fmt.Errorf("%w: capture screenshot: %w", legionerrors.ErrConnectionFailure, err)
	}
	return png, nil
}

// CurrentURL returns the page address.
func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	if err := c.ready(ctx); err != nil {
		return "", err
	}

	runCtx, release := c.runCtx(ctx)
	defer release()
	var url string
	err := chromedp.Run(runCtx, chromedp.Location(&url))
	if err != nil {
		return "", fmt.Errorf("%w: read location: %w", legionerrors.ErrConnectionFailure, err)
	}
	return url, nil
}

// Close tears the browser down. Idempotent.
func (c *Chrome) Close(_ context.Context) error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := chromedp.Cancel(c.browserCtx)
	c.cancelCtx()
	c.cancelAlloc()
	if err != nil {
		return legionerrors.Wrap(err, "failed to close browser")
	}
	c.logger.Info().Msg("browser session closed")
	return nil
}

// ready guards every call against a closed session or a canceled ctx.
func (c *Chrome) ready(ctx context.Context) error {
	if err := ctxutil.Canceled(ctx); err != nil {
		return err
	}
	if c.closed {
		return legionerrors.ErrBrowserClosed
	}
	return nil
}

// runCtx ties one chromedp run to both the caller's ctx and the browser's
// lifetime: cancellation of either ends the run. Callers must invoke the
// returned cancel once the run finishes to release the linkage.
func (c *Chrome) runCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(c.browserCtx)
	stop := context.AfterFunc(ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// queryFor maps the locator dialect onto a chromedp query option.
func queryFor(locator string) (string, chromedp.QueryOption) {
	expr, xpath := splitDialect(locator)
	if xpath {
		return expr, chromedp.BySearch
	}
	return expr, chromedp.ByQuery
}

// splitDialect parses the locator dialect: locators starting with "//" or
// "xpath=" are XPath expressions, everything else is a CSS selector.
func splitDialect(locator string) (string, bool) {
	if expr, ok := strings.CutPrefix(locator, "xpath="); ok {
		return expr, true
	}
	if strings.HasPrefix(locator, "//") {
		return locator, true
	}
	return locator, false
}
