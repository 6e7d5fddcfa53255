//go:build !linux

// Stub driver so the binary builds and runs on development machines.
// Every operation that would touch hardware reports ErrUnsupported.

package epd

import (
	"context"
	"errors"
)

const (
	Width     = 800
	Height    = 480
	PlaneSize = Width / 8 * Height
)

var ErrUnsupported = errors.New("epd: panel hardware is only supported on linux")

type Panel struct{}

func Open(ctx context.Context) (*Panel, error) {
	return nil, ErrUnsupported
}

func (p *Panel) Display(ctx context.Context, black, red []byte) error {
	return ErrUnsupported
}

func (p *Panel) Clear(ctx context.Context) error {
	return ErrUnsupported
}

func (p *Panel) Sleep(ctx context.Context) error {
	return ErrUnsupported
}

func (p *Panel) Close() error {
	return nil
}
