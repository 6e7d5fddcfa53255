// Package battery reads the charge gauge of a PiSugar 3 UPS over I2C.
// Development machines without the hardware fall back to a mock reader so
// the web UI keeps working.
package battery

import (
	"context"
	"errors"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PiSugar 3 register map, the parts this package reads.
const (
	defaultAddr   = 0x57
	regVoltageHi  = 0x22
	regVoltageLo  = 0x23
	regPercentage = 0x2A
)

// Status is the gauge snapshot served by /api/battery.
type Status struct {
	Percent   int `json:"percent"`
	VoltageMv int `json:"voltage_mv"`
}

// Reader yields battery status. Implementations: the I2C gauge and a mock.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

// NewMockReader returns a Reader that fabricates plausible values. Used
// when no gauge hardware is reachable.
func NewMockReader() Reader {
	return &mockReader{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

type mockReader struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func (m *mockReader) Read(context.Context) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Percent: 20 + m.rnd.Intn(81)}, nil
}

// NewI2CReader returns a Reader for a gauge at addr on the named periph
// bus ("" picks the platform default, /dev/i2c-1 on a Pi). The bus is
// opened per read so a flaky connection recovers on the next poll.
func NewI2CReader(busName string, addr uint16) Reader {
	return &i2cReader{busName: busName, addr: addr}
}

type i2cReader struct {
	busName string
	addr    uint16

	initOnce sync.Once
	initErr  error
}

func (r *i2cReader) Read(ctx context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, errors.New("battery: i2c unavailable on this platform")
	}
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	r.initOnce.Do(func() {
		_, r.initErr = host.Init()
	})
	if r.initErr != nil {
		return Status{}, r.initErr
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, err
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}

	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, err
		}
		return buf[0], nil
	}

	hi, err := readReg(regVoltageHi)
	if err != nil {
		return Status{}, err
	}
	lo, err := readReg(regVoltageLo)
	if err != nil {
		return Status{}, err
	}

	pct, err := readReg(regPercentage)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(hi)<<8 | uint16(lo)),
	}, nil
}

var (
	defaultOnce   sync.Once
	defaultReader Reader
)

// DefaultReader probes the I2C gauge once and returns it, or the mock when
// the probe fails. The choice is cached for the process lifetime.
func DefaultReader() Reader {
	defaultOnce.Do(func() {
		if runtime.GOOS != "linux" {
			defaultReader = NewMockReader()
			return
		}
		r := NewI2CReader("", defaultAddr)
		if _, err := r.Read(context.Background()); err != nil {
			defaultReader = NewMockReader()
			return
		}
		defaultReader = r
	})
	return defaultReader
}
