// Package browser wraps a Chromium instance driven over the DevTools
// protocol. It owns the launcher lifecycle, a single page, cookie
// snapshot/restore, and the network-response capture stream the
// interceptor consumes.
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"dmscout/internal/logging"
	"dmscout/internal/proxy"
	"dmscout/internal/types"
)

// Config controls how the browser is launched.
type Config struct {
	Bin               string
	Headless          bool
	Proxy             *proxy.Settings
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	UserAgent         string
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Driver is one launched browser with one page. Not safe for
// concurrent use; runs drive it sequentially.
type Driver struct {
	cfg      Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func New(cfg Config) *Driver {
	return &Driver{cfg: cfg}
}

// Start launches Chromium and opens the working page. Proxy
// credentials, when present, are answered through the browser-level
// auth handler since Chromium only accepts the server on the flag.
func (d *Driver) Start(ctx context.Context) error {
	timer := logging.StartTimer(logging.CategoryBrowser, "Start")
	defer timer.Stop()

	launch := launcher.New().Headless(d.cfg.Headless).Leakless(true)
	if d.cfg.Bin != "" {
		launch = launch.Bin(d.cfg.Bin)
	}
	if d.cfg.Proxy != nil && d.cfg.Proxy.Server != "" {
		launch = launch.Proxy(d.cfg.Proxy.Server)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chromium: %w", err)
	}
	d.launcher = launch

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return fmt.Errorf("connect to chromium: %w", err)
	}
	d.browser = browser

	if d.cfg.Proxy != nil && d.cfg.Proxy.HasAuth() {
		handler := browser.HandleAuth(d.cfg.Proxy.Username, d.cfg.Proxy.Password)
		go func() {
			if err := handler(); err != nil {
				logging.BrowserDebug("Proxy auth handler stopped: %v", err)
			}
		}()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		d.Close()
		return fmt.Errorf("open page: %w", err)
	}
	d.page = page

	if d.cfg.ViewportWidth > 0 && d.cfg.ViewportHeight > 0 {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             d.cfg.ViewportWidth,
			Height:            d.cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			logging.BrowserWarn("Set viewport failed: %v", err)
		}
	}
	if d.cfg.UserAgent != "" {
		_ = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent})
	}

	logging.Browser("Chromium started (headless=%v)", d.cfg.Headless)
	return nil
}

// Close tears down the page, the browser connection, and the launched
// process. Safe to call more than once.
func (d *Driver) Close() {
	if d.page != nil {
		_ = d.page.Close()
		d.page = nil
	}
	if d.browser != nil {
		_ = d.browser.Close()
		d.browser = nil
	}
	if d.launcher != nil {
		d.launcher.Cleanup()
		d.launcher = nil
	}
}

// Page exposes the working page for callers that need direct access.
func (d *Driver) Page() *rod.Page {
	return d.page
}

// Navigate loads a URL and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	page := d.page.Context(ctx).Timeout(d.cfg.navigationTimeout())
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load %s: %w", url, err)
	}
	return nil
}

// URL returns the page's current location.
func (d *Driver) URL() string {
	info, err := d.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Click finds an element and clicks it.
func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

// Type fills an element with text, replacing any existing value.
func (d *Driver) Type(ctx context.Context, selector, text string) error {
	el, err := d.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	return el.Input(text)
}

// WaitVisible blocks until the selector resolves to a visible element
// or the timeout passes.
func (d *Driver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	page := d.page.Context(ctx).Timeout(timeout)
	el, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element %s: %w", selector, err)
	}
	return el.WaitVisible()
}

// Text returns the inner text of the first element matching selector,
// or empty when none exists.
func (d *Driver) Text(ctx context.Context, selector string) string {
	has, el, err := d.page.Context(ctx).Has(selector)
	if err != nil || !has {
		return ""
	}
	text, err := el.Text()
	if err != nil {
		return ""
	}
	return text
}

// BodyText returns the visible page text, used for marker matching.
func (d *Driver) BodyText(ctx context.Context) string {
	return d.Text(ctx, "body")
}

// Has reports whether the selector currently matches an element.
func (d *Driver) Has(ctx context.Context, selector string) bool {
	has, _, err := d.page.Context(ctx).Has(selector)
	return err == nil && has
}

// HasText reports whether any element on the page contains the given
// text. Login challenge detection keys off on-page marker phrases.
func (d *Driver) HasText(ctx context.Context, text string) bool {
	has, _, err := d.page.Context(ctx).HasX(textXPath(text))
	return err == nil && has
}

// ClickByText clicks the first element containing the given text.
func (d *Driver) ClickByText(ctx context.Context, text string) error {
	el, err := d.page.Context(ctx).ElementX(textXPath(text))
	if err != nil {
		return fmt.Errorf("element with text %q: %w", text, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func textXPath(text string) string {
	return fmt.Sprintf(`//*[contains(text(), %q)]`, text)
}

// ScrollBy scrolls the page by the given vertical distance.
func (d *Driver) ScrollBy(ctx context.Context, pixels int) error {
	_, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `(px) => window.scrollBy(0, px)`,
		JSArgs:  []interface{}{pixels},
		ByValue: true,
	})
	return err
}

// UserAgent reads the navigator's user agent string.
func (d *Driver) UserAgent(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => navigator.userAgent`,
		ByValue: true,
	})
	if err != nil {
		return "", fmt.Errorf("read user agent: %w", err)
	}
	return res.Value.Str(), nil
}

// Cookies snapshots the browser's cookies.
func (d *Driver) Cookies() ([]types.Cookie, error) {
	res, err := proto.NetworkGetCookies{}.Call(d.page)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	cookies := make([]types.Cookie, 0, len(res.Cookies))
	for _, c := range res.Cookies {
		cookies = append(cookies, types.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

// RestoreCookies injects a stored cookie set into the page before
// navigation so the session resumes without a fresh login.
func (d *Driver) RestoreCookies(cookies []types.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  proto.TimeSinceEpoch(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	if err := d.page.SetCookies(params); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// CookieValue finds a cookie by name in the current jar.
func (d *Driver) CookieValue(name string) (string, bool) {
	cookies, err := d.Cookies()
	if err != nil {
		return "", false
	}
	for _, c := range cookies {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// ResponseBody is one captured network response.
type ResponseBody struct {
	URL  string
	Body []byte
}

// CaptureResponses streams response bodies whose URLs pass the filter
// onto the returned channel until stop is called. Bodies that cannot
// be fetched from the protocol are dropped with a warning.
func (d *Driver) CaptureResponses(ctx context.Context, match func(url string) bool) (<-chan ResponseBody, func()) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan ResponseBody, 16)
	page := d.page.Context(ctx)

	wait := page.EachEvent(func(ev *proto.NetworkResponseReceived) {
		if ev.Response == nil || !match(ev.Response.URL) {
			return
		}
		res, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(page)
		if err != nil {
			logging.BrowserWarn("Response body unavailable for %s: %v", ev.Response.URL, err)
			return
		}
		body := []byte(res.Body)
		if res.Base64Encoded {
			decoded, err := decodeBase64(res.Body)
			if err != nil {
				logging.BrowserWarn("Response body decode failed for %s: %v", ev.Response.URL, err)
				return
			}
			body = decoded
		}
		select {
		case out <- ResponseBody{URL: ev.Response.URL, Body: body}:
		case <-ctx.Done():
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		wait()
	}()

	var stopped bool
	stop := func() {
		if stopped {
			return
		}
		stopped = true
		cancel()
		<-done
	}
	return out, stop
}

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// NormalizeURL strips the query string for log lines.
func NormalizeURL(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
