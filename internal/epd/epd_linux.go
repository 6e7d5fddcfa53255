//go:build linux

// Package epd drives the Waveshare 7.5" tri-color (B) e-paper panel over
// SPI and GPIO using periph.io. The panel is 800x480 with separate black
// and red 1bpp planes.
package epd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	Width     = 800
	Height    = 480
	PlaneSize = Width / 8 * Height
)

// ErrUnsupported mirrors the non-linux stub so callers can treat a missing
// panel uniformly across platforms.
var ErrUnsupported = errors.New("epd: panel hardware is only supported on linux")

// Default HAT wiring (BCM numbering).
const (
	pinRST  = "GPIO17"
	pinDC   = "GPIO25"
	pinBusy = "GPIO24"
)

// UC8179 command set, the subset this driver uses.
const (
	cmdPanelSetting   = 0x00
	cmdPowerSetting   = 0x01
	cmdPowerOff       = 0x02
	cmdPowerOn        = 0x04
	cmdDeepSleep      = 0x07
	cmdDataBlack      = 0x10
	cmdRefresh        = 0x12
	cmdDataRed        = 0x13
	cmdDualSPI        = 0x15
	cmdVCOMInterval   = 0x50
	cmdTCONSetting    = 0x60
	cmdResolution     = 0x61
	cmdGetStatus      = 0x71
	deepSleepCheck    = 0xA5
	maxSPIChunk       = 2048
	refreshTimeout    = 40 * time.Second
	powerStateTimeout = 10 * time.Second
)

// Panel is an open handle to the display.
type Panel struct {
	port spi.PortCloser
	conn spi.Conn

	rst  gpio.PinOut
	dc   gpio.PinOut
	busy gpio.PinIn
}

// Open initializes the periph host, claims the SPI port and GPIO pins, and
// runs the panel power-up sequence. Callers must Close when done.
func Open(ctx context.Context) (*Panel, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: host init: %w", err)
	}

	port, err := spireg.Open("")
	if err != nil {
		return nil, fmt.Errorf("epd: open spi: %w", err)
	}
	conn, err := port.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: connect spi: %w", err)
	}

	p := &Panel{port: port, conn: conn}

	for _, pin := range []struct {
		name string
		out  *gpio.PinOut
		in   *gpio.PinIn
	}{
		{name: pinRST, out: &p.rst},
		{name: pinDC, out: &p.dc},
		{name: pinBusy, in: &p.busy},
	} {
		g := gpioreg.ByName(pin.name)
		if g == nil {
			_ = port.Close()
			return nil, fmt.Errorf("epd: gpio %s not found", pin.name)
		}
		if pin.out != nil {
			if err := g.Out(gpio.High); err != nil {
				_ = port.Close()
				return nil, fmt.Errorf("epd: configure %s: %w", pin.name, err)
			}
			*pin.out = g
		} else {
			if err := g.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
				_ = port.Close()
				return nil, fmt.Errorf("epd: configure %s: %w", pin.name, err)
			}
			*pin.in = g
		}
	}

	if err := p.init(ctx); err != nil {
		_ = port.Close()
		return nil, err
	}
	return p, nil
}

func (p *Panel) init(ctx context.Context) error {
	p.reset()

	if err := p.command(cmdPowerSetting, 0x07, 0x07, 0x3F, 0x3F); err != nil {
		return err
	}
	if err := p.command(cmdPowerOn); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := p.waitIdle(ctx, powerStateTimeout); err != nil {
		return fmt.Errorf("epd: power on: %w", err)
	}

	if err := p.command(cmdPanelSetting, 0x0F); err != nil {
		return err
	}
	// 800x480.
	if err := p.command(cmdResolution, 0x03, 0x20, 0x01, 0xE0); err != nil {
		return err
	}
	if err := p.command(cmdDualSPI, 0x00); err != nil {
		return err
	}
	if err := p.command(cmdVCOMInterval, 0x11, 0x07); err != nil {
		return err
	}
	return p.command(cmdTCONSetting, 0x22)
}

// Display pushes both planes and triggers a full refresh. Planes use the
// packed convention from internal/convert: 0xFF white, cleared bit is ink.
// The controller wants the red plane inverted, so it is flipped on the way
// out.
func (p *Panel) Display(ctx context.Context, black, red []byte) error {
	if len(black) != PlaneSize || len(red) != PlaneSize {
		return fmt.Errorf("epd: plane size %d/%d, expected %d", len(black), len(red), PlaneSize)
	}

	if err := p.commandData(cmdDataBlack, black); err != nil {
		return err
	}

	inverted := make([]byte, len(red))
	for i, b := range red {
		inverted[i] = ^b
	}
	if err := p.commandData(cmdDataRed, inverted); err != nil {
		return err
	}

	return p.refresh(ctx)
}

// Clear flushes both planes to white and refreshes.
func (p *Panel) Clear(ctx context.Context) error {
	white := make([]byte, PlaneSize)
	for i := range white {
		white[i] = 0xFF
	}
	if err := p.commandData(cmdDataBlack, white); err != nil {
		return err
	}
	if err := p.commandData(cmdDataRed, make([]byte, PlaneSize)); err != nil {
		return err
	}
	return p.refresh(ctx)
}

// Sleep powers the panel down into deep sleep. The panel needs a hardware
// reset (a new Open) to wake up again.
func (p *Panel) Sleep(ctx context.Context) error {
	if err := p.command(cmdPowerOff); err != nil {
		return err
	}
	if err := p.waitIdle(ctx, powerStateTimeout); err != nil {
		return fmt.Errorf("epd: power off: %w", err)
	}
	return p.command(cmdDeepSleep, deepSleepCheck)
}

// Close releases the SPI port. It does not touch panel state; call Sleep
// first to avoid leaving the screen powered.
func (p *Panel) Close() error {
	return p.port.Close()
}

func (p *Panel) reset() {
	_ = p.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
	_ = p.rst.Out(gpio.Low)
	time.Sleep(2 * time.Millisecond)
	_ = p.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
}

func (p *Panel) refresh(ctx context.Context) error {
	if err := p.command(cmdRefresh); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := p.waitIdle(ctx, refreshTimeout); err != nil {
		return fmt.Errorf("epd: refresh: %w", err)
	}
	return nil
}

// waitIdle polls the BUSY line until the controller reports idle (high).
func (p *Panel) waitIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if err := p.command(cmdGetStatus); err != nil {
			return err
		}
		if p.busy.Read() == gpio.High {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("busy timeout after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func (p *Panel) command(cmd byte, data ...byte) error {
	if err := p.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := p.conn.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("epd: command %#02x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	return p.writeData(data)
}

func (p *Panel) commandData(cmd byte, data []byte) error {
	if err := p.command(cmd); err != nil {
		return err
	}
	return p.writeData(data)
}

func (p *Panel) writeData(data []byte) error {
	if err := p.dc.Out(gpio.High); err != nil {
		return err
	}
	for off := 0; off < len(data); off += maxSPIChunk {
		end := off + maxSPIChunk
		if end > len(data) {
			end = len(data)
		}
		if err := p.conn.Tx(data[off:end], nil); err != nil {
			return fmt.Errorf("epd: data write: %w", err)
		}
	}
	return nil
}
