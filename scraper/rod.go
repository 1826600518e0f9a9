package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/tcees/config"
	"github.com/use-agent/tcees/extract"
	"github.com/use-agent/tcees/models"
)

// RodDriver starts Chromium sessions with go-rod. By default every session
// is its own browser process, killed when the session closes. With a CDP
// URL configured, sessions are incognito contexts of that remote browser.
type RodDriver struct {
	cfg    config.BrowserConfig
	bin    string
	remote *rod.Browser

	versionOnce sync.Once
}

// NewRodDriver locates the browser binary, or connects to the remote
// browser when cfg.CDPURL is set.
func NewRodDriver(cfg config.BrowserConfig) (*RodDriver, error) {
	d := &RodDriver{cfg: cfg}

	if cfg.CDPURL != "" {
		b := rod.New().ControlURL(cfg.CDPURL)
		if err := b.Connect(); err != nil {
			return nil, models.NewScrapeError(
				models.ErrCodeBrowserCrash,
				"failed to connect to CDP URL",
				err,
			)
		}
		d.remote = b
		d.logVersion(b)
		return d, nil
	}

	bin, err := resolveBrowserBin(cfg.BrowserBin)
	if err != nil {
		return nil, err
	}
	d.bin = bin
	slog.Info("browser binary resolved", "path", bin)
	return d, nil
}

// launcher builds the command line of a session's browser.
func (d *RodDriver) launcher() *launcher.Launcher {
	l := launcher.New().
		Bin(d.bin).
		Headless(d.cfg.Headless).
		NoSandbox(d.cfg.NoSandbox).
		Leakless(true)

	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-software-rasterizer"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-infobars"))
	l.Set(flags.Flag("disable-notifications"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("blink-settings"), "imagesEnabled=false")
	l.Set(flags.Flag("window-size"), "1366,768")
	l.Set(flags.Flag("lang"), "pt-BR")

	switch {
	case d.cfg.DisableProxy:
		l.Set(flags.Flag("no-proxy-server"))
		l.Set(flags.Flag("proxy-bypass-list"), "*")
	case d.cfg.Proxy != "":
		l = l.Proxy(d.cfg.Proxy)
	}

	if d.cfg.Stealth {
		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
	}
	return l
}

// NewSession implements Driver.
func (d *RodDriver) NewSession(ctx context.Context) (Session, error) {
	if d.remote != nil {
		return d.newRemoteSession()
	}

	l := d.launcher().Context(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to launch browser", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		go l.Cleanup()
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to connect to browser", err)
	}
	d.versionOnce.Do(func() { d.logVersion(b) })

	s := &rodSession{browser: b, launcher: l}
	if err := d.openPage(s); err != nil {
		_ = s.Close()
		return nil, err
	}
	slog.Debug("browser session started", "pid", l.PID())
	return s, nil
}

func (d *RodDriver) newRemoteSession() (Session, error) {
	b, err := d.remote.Incognito()
	if err != nil {
		return nil, models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to create incognito context", lost(err))
	}
	s := &rodSession{browser: b}
	if err := d.openPage(s); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// openPage creates the session's tab and prepares it before any navigation:
// stealth JS and request blocking only apply to later loads.
func (d *RodDriver) openPage(s *rodSession) error {
	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return models.NewScrapeError(models.ErrCodeBrowserCrash, "failed to open page", lost(err))
	}
	s.page = page

	if d.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{
			"Accept-Language": "pt-BR,pt;q=0.9,en;q=0.5",
		}),
	}.Call(page)

	s.router = setupHijack(page, d.cfg.BlockedResourceTypes)
	return nil
}

// logVersion records the browser build. Driver and browser versions drift
// independently, so it is the first thing to check when pages misbehave.
func (d *RodDriver) logVersion(b *rod.Browser) {
	v, err := b.Version()
	if err != nil {
		slog.Warn("could not read browser version", "error", err)
		return
	}
	slog.Info("browser connected",
		"product", v.Product,
		"protocol", v.ProtocolVersion,
		"userAgent", v.UserAgent,
	)
}

// Close shuts down the remote browser, if any.
func (d *RodDriver) Close() error {
	if d.remote != nil {
		return d.remote.Close()
	}
	return nil
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// lost marks errors that mean the browser connection is gone.
func lost(err error) error {
	if err == nil {
		return nil
	}
	var opErr *net.OpError
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, cdp.ErrSessionNotFound) ||
		errors.As(err, &opErr) ||
		strings.Contains(err.Error(), "target closed") {
		return fmt.Errorf("%w: %w", ErrSessionLost, err)
	}
	return err
}

// rodSession is a tab in a browser owned by the session.
type rodSession struct {
	browser  *rod.Browser
	page     *rod.Page
	router   *rod.HijackRouter
	launcher *launcher.Launcher // nil for remote sessions

	closeOnce sync.Once
	closeErr  error
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	return lost(s.page.Context(ctx).Navigate(url))
}

func (s *rodSession) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := s.page.Context(ctx).Has(selector)
	return has, lost(err)
}

const queryJS = `(sel) => Array.from(document.querySelectorAll(sel)).map(
	(e) => ({text: e.innerText || e.textContent || "", html: e.innerHTML}))`

func (s *rodSession) Query(ctx context.Context, selector string) ([]extract.Node, error) {
	res, err := s.page.Context(ctx).Eval(queryJS, selector)
	if err != nil {
		return nil, lost(err)
	}
	items := res.Value.Arr()
	nodes := make([]extract.Node, len(items))
	for i, item := range items {
		nodes[i] = extract.Node{
			Text: extract.NormalizeSpace(item.Get("text").Str()),
			HTML: item.Get("html").Str(),
		}
	}
	return nodes, nil
}

func (s *rodSession) Upload(ctx context.Context, selector, path string) error {
	el, err := s.page.Context(ctx).Element(selector)
	if err != nil {
		return lost(err)
	}
	return lost(el.SetFiles([]string{path}))
}

func (s *rodSession) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	return html, lost(err)
}

func (s *rodSession) Text(ctx context.Context) (string, error) {
	res, err := s.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", lost(err)
	}
	return res.Value.Str(), nil
}

func (s *rodSession) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	return png, lost(err)
}

// Close stops the router, closes the browser (or the incognito context of
// a remote one) and makes sure a launched process is gone.
func (s *rodSession) Close() error {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.launcher == nil {
			return
		}

		exited := make(chan struct{})
		go func() {
			s.launcher.Cleanup()
			close(exited)
		}()
		if s.closeErr != nil {
			s.launcher.Kill()
		}
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			slog.Warn("browser did not exit, killing", "pid", s.launcher.PID())
			s.launcher.Kill()
			<-exited
		}
	})
	return s.closeErr
}
