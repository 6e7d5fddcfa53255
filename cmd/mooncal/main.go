package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"mooncal/internal/capture"
	"mooncal/internal/config"
	"mooncal/internal/convert"
	"mooncal/internal/epd"
	applog "mooncal/internal/log"
	"mooncal/internal/web"
)

type flagSet struct {
	configPath string
	listen     string
	debug      bool
	once       bool
	renderOnly bool
	dump       bool
	chromium   string
}

func main() {
	flags := parseFlags()

	if flags.debug {
		applog.SetLevel(applog.LevelDebug)
	}
	applog.Info("mooncal starting", "version", "0.2.0")

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		applog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		cfg.Listen = flags.listen
	}

	applog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"months_ahead", cfg.MonthsAhead,
		"overlays", len(cfg.Overlays),
		"once", flags.once,
		"render_only", flags.renderOnly,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		applog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	webErr := make(chan error, 1)
	go func() {
		webErr <- web.Start(ctx, cfg, flags.debug)
	}()

	p := &pipeline{cfg: cfg, flags: flags}

	if flags.once {
		if err := waitForServer(ctx, cfg.Listen); err != nil {
			applog.Error("web server did not come up", err)
			os.Exit(1)
		}
		if err := p.run(ctx); err != nil {
			applog.Error("refresh cycle failed", err)
			os.Exit(1)
		}
		cancel()
		<-webErr
		applog.Info("mooncal exiting")
		return
	}

	sched := cron.New()
	if _, err := sched.AddFunc(cfg.RefreshCron, func() {
		if err := p.run(ctx); err != nil {
			applog.Error("scheduled refresh failed", err)
		}
	}); err != nil {
		applog.Error("invalid refresh schedule", err, "refresh", cfg.RefreshCron)
		os.Exit(1)
	}
	sched.Start()
	applog.Info("refresh scheduler started", "refresh", cfg.RefreshCron)

	// First render shortly after startup so the panel isn't stale until the
	// next cron tick.
	go func() {
		if err := waitForServer(ctx, cfg.Listen); err != nil {
			return
		}
		if err := p.run(ctx); err != nil {
			applog.Error("initial refresh failed", err)
		}
	}()

	if err := <-webErr; err != nil {
		applog.Error("web server failed", err)
		cancel()
		sched.Stop()
		os.Exit(1)
	}

	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
	}
	applog.Info("mooncal exiting")
}

// pipeline is one capture -> pack -> display cycle.
type pipeline struct {
	cfg   *config.Config
	flags flagSet
}

func (p *pipeline) run(ctx context.Context) error {
	start := time.Now()

	previewPath := "/var/lib/mooncal/preview.png"
	if p.flags.debug {
		previewPath = "./cache/preview.png"
	}
	if err := os.MkdirAll(filepath.Dir(previewPath), 0o755); err != nil {
		return fmt.Errorf("prepare preview dir: %w", err)
	}

	err := capture.PagePNG(ctx, capture.Options{
		URL:        "http://" + p.cfg.Listen + "/",
		OutputPath: previewPath,
		ExecPath:   p.flags.chromium,
	})
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	applog.Debug("page captured", "path", previewPath)

	img, err := loadNRGBA(previewPath)
	if err != nil {
		return fmt.Errorf("decode preview: %w", err)
	}

	black, red, err := convert.PackNRGBA(img)
	if err != nil {
		return fmt.Errorf("pack planes: %w", err)
	}

	if p.flags.dump {
		dir := filepath.Dir(previewPath)
		if err := os.WriteFile(filepath.Join(dir, "black.bin"), black, 0o644); err != nil {
			applog.Error("failed to dump black plane", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "red.bin"), red, 0o644); err != nil {
			applog.Error("failed to dump red plane", err)
		}
	}

	if p.flags.renderOnly {
		applog.Info("render-only refresh complete", "elapsed", time.Since(start).String())
		return nil
	}

	panel, err := epd.Open(ctx)
	if err != nil {
		return fmt.Errorf("open panel: %w", err)
	}
	defer panel.Close()

	if err := panel.Display(ctx, black, red); err != nil {
		_ = panel.Sleep(ctx)
		return fmt.Errorf("display: %w", err)
	}
	if err := panel.Sleep(ctx); err != nil {
		applog.Error("panel sleep failed", err)
	}

	applog.Info("refresh complete", "elapsed", time.Since(start).String())
	return nil
}

// loadNRGBA decodes a PNG and normalizes it to NRGBA for the packer.
func loadNRGBA(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		return nil, err
	}
	if nrgba, ok := decoded.(*image.NRGBA); ok {
		return nrgba, nil
	}

	b := decoded.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), decoded, b.Min, draw.Src)
	return nrgba, nil
}

// waitForServer polls /health until the web server accepts requests.
func waitForServer(ctx context.Context, listen string) error {
	url := "http://" + listen + "/health"
	client := &http.Client{Timeout: time.Second}

	for i := 0; i < 50; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("server at %s not ready", listen)
}

func parseFlags() flagSet {
	var f flagSet

	flag.StringVar(&f.configPath, "config", "/etc/mooncal/config.yaml", "Path to config file")
	flag.StringVar(&f.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&f.debug, "debug", false, "Debug logging and working-directory cache paths")
	flag.BoolVar(&f.once, "once", false, "Run one capture+display cycle and exit")
	flag.BoolVar(&f.renderOnly, "render-only", false, "Render only; do not touch display hardware")
	flag.BoolVar(&f.dump, "dump", false, "Dump packed planes next to the preview image")
	flag.StringVar(&f.chromium, "chromium", "", "Path to the Chromium binary (empty uses PATH)")

	flag.Parse()

	return f
}
