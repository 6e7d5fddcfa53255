// Package capture renders the calendar page to a PNG using headless
// Chromium. The PNG is both the e-paper source image and the /preview.png
// payload.
package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
)

// Viewport defaults match the 7.5" panel geometry.
const (
	DefaultWidth   = 800
	DefaultHeight  = 480
	DefaultTimeout = 30 * time.Second
)

// Options describes a single screenshot run.
type Options struct {
	// URL of the page to render, e.g. "http://127.0.0.1:8080/".
	URL string

	// OutputPath receives the PNG, e.g. "/var/lib/mooncal/preview.png".
	OutputPath string

	// Viewport size in pixels; zero means the panel defaults.
	Width  int
	Height int

	// Timeout bounds navigation, render wait and screenshot together.
	Timeout time.Duration

	// ExecPath points at the Chromium binary when it is not on PATH
	// (e.g. /usr/bin/chromium-browser on Raspberry Pi OS).
	ExecPath string
}

// PagePNG navigates to opts.URL, waits for the page to mark itself rendered
// via data-ready="true" on its root element, takes a full screenshot and
// writes it to opts.OutputPath.
func PagePNG(parent context.Context, opts Options) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	defer allocCancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		// Give the canvas painters a beat to finish.
		chromedp.Sleep(300 * time.Millisecond),
		chromedp.FullScreenshot(&png, 100),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("capture: chromedp run: %w", err)
	}

	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: write png: %w", err)
	}
	return nil
}
