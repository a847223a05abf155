package rod

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"regexp"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"uipilot/internal/application/port/output"
	"uipilot/internal/domain/entity"
)

var _ output.UIPort = (*Adapter)(nil)

// Adapter drives a Chromium surface through go-rod. It is the
// accessibility/input backend: semantic-label lookup, DOM text search
// and raw coordinate input, each backing one locator strategy.
type Adapter struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	timeout  time.Duration
}

type Config struct {
	Headless    bool
	SlowMotion  time.Duration
	Timeout     time.Duration
	NoSandbox   bool
	DownloadDir string
}

func DefaultConfig() Config {
	return Config{
		Headless:   false,
		SlowMotion: 300 * time.Millisecond,
		Timeout:    10 * time.Second,
		NoSandbox:  true,
	}
}

func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		SlowMotion(cfg.SlowMotion).
		MustConnect()

	if cfg.DownloadDir != "" {
		err := proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: cfg.DownloadDir,
		}.Call(browser)
		if err != nil {
			browser.Close()
			return nil, fmt.Errorf("set download dir: %w", err)
		}
	}

	page := browser.MustPage("about:blank")

	return &Adapter{
		browser:  browser,
		launcher: l,
		page:     page,
		timeout:  cfg.Timeout,
	}, nil
}

func (a *Adapter) Navigate(ctx context.Context, url string) error {
	if err := a.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	a.page.MustWaitLoad()
	a.page.WaitIdle(5 * time.Second)
	return nil
}

// ClickLabel locates a control by its semantic label: exact aria-label
// first, then visible text on interactive elements.
func (a *Adapter) ClickLabel(ctx context.Context, label string) error {
	el, err := a.findByLabel(ctx, label)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to %q: %w", label, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", label, err)
	}
	a.page.WaitIdle(2 * time.Second)
	return nil
}

func (a *Adapter) TypeLabel(ctx context.Context, label, text string) error {
	el, err := a.findByLabel(ctx, label)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into %q: %w", label, err)
	}
	return nil
}

// SearchClick is the keyboard-search strategy: a DOM text search for
// the target, like a user finding it with the in-page find box.
func (a *Adapter) SearchClick(ctx context.Context, text string) error {
	el, err := a.searchFor(ctx, text)
	if err != nil {
		return err
	}
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll to search hit %q: %w", text, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click search hit %q: %w", text, err)
	}
	a.page.WaitIdle(2 * time.Second)
	return nil
}

func (a *Adapter) SearchType(ctx context.Context, target, text string) error {
	el, err := a.searchFor(ctx, target)
	if err != nil {
		return err
	}
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus search hit %q: %w", target, err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("type into search hit %q: %w", target, err)
	}
	return nil
}

// ClickAt synthesizes a click at vision-derived pixel coordinates.
func (a *Adapter) ClickAt(ctx context.Context, p entity.Point) error {
	m := a.page.Context(ctx).Mouse
	if err := m.MoveTo(proto.Point{X: float64(p.X), Y: float64(p.Y)}); err != nil {
		return fmt.Errorf("move mouse to (%d,%d): %w", p.X, p.Y, err)
	}
	if err := m.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click at (%d,%d): %w", p.X, p.Y, err)
	}
	a.page.WaitIdle(2 * time.Second)
	return nil
}

func (a *Adapter) TypeAt(ctx context.Context, p entity.Point, text string) error {
	if err := a.ClickAt(ctx, p); err != nil {
		return err
	}
	if err := a.page.Context(ctx).InsertText(text); err != nil {
		return fmt.Errorf("insert text at (%d,%d): %w", p.X, p.Y, err)
	}
	return nil
}

func (a *Adapter) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := a.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	// Bound the payload before it reaches the vision interpreter.
	if img.Bounds().Dx() > 1280 {
		img = imaging.Resize(img, 1280, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (a *Adapter) VisibleText(ctx context.Context) (string, error) {
	body, err := a.page.Context(ctx).Timeout(a.timeout).Element("body")
	if err != nil {
		return "", fmt.Errorf("body not found: %w", err)
	}
	raw, err := body.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return ExtractVisibleText(raw), nil
}

func (a *Adapter) CurrentURL() string {
	return a.page.MustInfo().URL
}

func (a *Adapter) Close() {
	if a.browser != nil {
		_ = a.browser.Close()
	}
	if a.launcher != nil {
		a.launcher.Kill()
		a.launcher.Cleanup()
	}
}

func (a *Adapter) findByLabel(ctx context.Context, label string) (*rod.Element, error) {
	p := a.page.Context(ctx).Timeout(a.timeout)

	if el, err := p.Element(fmt.Sprintf(`[aria-label=%q]`, label)); err == nil {
		return el, nil
	}

	pattern := "/^\\s*" + regexp.QuoteMeta(label) + "\\s*$/i"
	el, err := p.ElementR(
		"button, [role='button'], a, [role='link'], [role='menuitem'], [role='tab'], label", pattern)
	if err != nil {
		return nil, fmt.Errorf("no element labeled %q: %w", label, err)
	}
	return el, nil
}

func (a *Adapter) searchFor(ctx context.Context, text string) (*rod.Element, error) {
	res, err := a.page.Context(ctx).Timeout(a.timeout).Search(text)
	if err != nil {
		return nil, fmt.Errorf("surface search for %q: %w", text, err)
	}
	defer res.Release()

	if res.First == nil {
		return nil, fmt.Errorf("surface search found nothing for %q", text)
	}
	return res.First, nil
}
