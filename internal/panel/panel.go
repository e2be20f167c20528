// Package panel drives UC8151-family e-paper controllers via SPI.
//
// The family covers the common Good Display / Waveshare bi-level and
// tri-color panels from 1.54" up to 7.5". Frames arrive through two
// RAM registers, 0x10 and 0x13, and a refresh command latches them
// onto the glass. Packed plane data from this module's converter is
// written to those registers byte for byte.
package panel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/rmitchellscott/epdkit/internal/logging"
	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/quant"
)

// Opts is the configuration for one connected panel.
type Opts struct {
	// Panel dimensions in pixels, native orientation
	W int // Width (must be between 8 and 960)
	H int // Height (must be between 8 and 680)

	// Class is the color layout the panel consumes. It decides which
	// data registers a frame fills and how the controller mode bits
	// are set.
	Class quant.Class

	// Optional control pins
	RST  gpio.PinIO // Reset pin (optional, nil if not used)
	BUSY gpio.PinIn // Busy pin (optional; waits fall back to fixed delays)
}

// Dev is the device handle for one e-paper panel.
type Dev struct {
	// Communication
	c    conn.Conn   // SPI connection
	dc   gpio.PinOut // Data/Command pin
	rst  gpio.PinIO  // Reset pin (optional)
	busy gpio.PinIn  // Busy pin (optional)

	// Panel geometry
	w, h     int
	rowBytes int // bytes per plane row, width rounded up to whole bytes
	class    quant.Class

	// State
	halted bool
}

// Settle times used when no BUSY pin is wired. With a BUSY pin the
// controller reports completion itself and these only bound the
// initial assert latency.
const (
	powerSettle   = 300 * time.Millisecond
	refreshSettle = 5 * time.Second
)

// NewSPI opens an e-paper panel connected via SPI.
//
// The SPI port is configured for 4MHz, Mode0 (CPOL=0, CPHA=0), 8-bit
// transfers; the family caps the write clock near 10MHz. The dc
// (Data/Command) pin must be provided. The returned device is reset
// and configured but left powered down; Push powers the charge pumps
// up and down around each refresh.
func NewSPI(p spi.Port, dc gpio.PinOut, opts *Opts) (*Dev, error) {
	if opts == nil {
		return nil, errors.New("panel: opts must describe the panel geometry")
	}
	if opts.W < 8 || opts.W > 960 {
		return nil, errors.New("panel: width must be between 8 and 960")
	}
	if opts.H < 8 || opts.H > 680 {
		return nil, errors.New("panel: height must be between 8 and 680")
	}
	if opts.Class < quant.BW || opts.Class > quant.Gray4 {
		return nil, fmt.Errorf("panel: unknown color class %v", opts.Class)
	}

	c, err := p.Connect(4*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		return nil, err
	}

	d := &Dev{
		c:        c,
		dc:       dc,
		rst:      opts.RST,
		busy:     opts.BUSY,
		w:        opts.W,
		h:        opts.H,
		rowBytes: (opts.W + 7) / 8,
		class:    opts.Class,
	}

	if d.busy != nil {
		if err := d.busy.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("panel: failed to configure BUSY pin: %w", err)
		}
	}

	if err := d.init(); err != nil {
		return nil, err
	}

	return d, nil
}

// init resets the controller and programs the panel configuration.
// No busy waits are needed here; nothing blocks until power-on.
func (d *Dev) init() error {
	// Hardware reset sequence (if RST pin is provided)
	if d.rst != nil {
		if err := d.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("panel: failed to pull RST low: %w", err)
		}
		time.Sleep(10 * time.Millisecond)

		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("panel: failed to pull RST high: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Power setting: internal VDS/VDG generation, VCOM from OTP,
	// +-11V source levels
	if err := d.sendCommand(0x01, 0x03, 0x00, 0x2B, 0x2B); err != nil {
		return err
	}

	// Booster soft start
	if err := d.sendCommand(0x06, 0x17, 0x17, 0x17); err != nil {
		return err
	}

	// Panel setting: LUT from OTP, gate scan up, source shift right,
	// booster on. Bit 4 selects two-pigment (KW) against three-pigment
	// (KWR) scanning.
	mode := byte(0x0F) // KWR
	if d.class == quant.BW || d.class == quant.Gray4 {
		mode = 0x1F // KW
	}
	if err := d.sendCommand(0x00, mode); err != nil {
		return err
	}

	// Resolution, four-byte form of the larger UC817x parts. Width is
	// programmed in whole bytes, matching the plane pitch.
	w := d.rowBytes * 8
	if err := d.sendCommand(0x61, byte(w>>8), byte(w), byte(d.h>>8), byte(d.h)); err != nil {
		return err
	}

	// VCOM and data interval: white border, default polarity
	return d.sendCommand(0x50, 0x77)
}

// sendCommand sends a command byte, then any parameter bytes with the
// DC pin high. The family reads DC per byte, unlike controllers that
// take whole command tables in one mode.
func (d *Dev) sendCommand(cmd byte, data ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return d.sendData(data)
}

// sendData sends a slice of data bytes.
func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	return d.c.Tx(data, nil)
}

// waitUntilIdle blocks until the controller releases the BUSY line.
// BUSY is driven low while an operation is in flight and asserts a
// moment after the triggering command lands, so polling starts after
// a short grace period. Without a BUSY pin the wait degrades to the
// fixed settle duration.
func (d *Dev) waitUntilIdle(ctx context.Context, settle time.Duration) error {
	if d.busy == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settle):
			return nil
		}
	}

	time.Sleep(10 * time.Millisecond)
	for d.busy.Read() == gpio.Low {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// Push powers the panel on, transfers one converted frame and
// refreshes the glass. The frame must match the panel geometry and
// color class. The call blocks through the refresh, which takes
// several seconds on large panels; bound it with the context.
func (d *Dev) Push(ctx context.Context, set *plane.Set) error {
	if d.halted {
		return errors.New("panel: device is halted")
	}
	if set.Width != d.w || set.Height != d.h {
		return fmt.Errorf("panel: frame is %dx%d, panel is %dx%d", set.Width, set.Height, d.w, d.h)
	}
	if set.Class != d.class {
		return fmt.Errorf("panel: frame class %v, panel class %v", set.Class, d.class)
	}

	start := time.Now()
	if err := d.update(ctx, set.Planes); err != nil {
		return err
	}

	logging.DebugWithComponent(logging.ComponentPanel, "Pushed frame",
		"class", d.class.String(),
		"width", d.w,
		"height", d.h,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return nil
}

// Clear refreshes the panel to all white. Good Display recommends a
// white-out before storage and between strongly differing images.
func (d *Dev) Clear(ctx context.Context) error {
	if d.halted {
		return errors.New("panel: device is halted")
	}

	n := d.rowBytes * d.h
	planes := make([][]byte, d.class.Planes())
	switch d.class {
	case quant.BW:
		planes[0] = bytes.Repeat([]byte{0xFF}, n)
	case quant.BWYR:
		// Packed 2-bit codes, 01 = white
		planes[0] = bytes.Repeat([]byte{0x55}, (d.w+3)/4*d.h)
	case quant.Gray4:
		// White is code 3, both plane bits set
		planes[0] = bytes.Repeat([]byte{0xFF}, n)
		planes[1] = bytes.Repeat([]byte{0xFF}, n)
	default:
		// White is code 1, chromatic plane stays clear
		planes[0] = bytes.Repeat([]byte{0xFF}, n)
		planes[1] = make([]byte, n)
	}
	return d.update(ctx, planes)
}

// update runs one full power-on, transfer, refresh, power-off cycle.
func (d *Dev) update(ctx context.Context, planes [][]byte) error {
	// Power ON: charge pumps up, VCOM driven
	if err := d.sendCommand(0x04); err != nil {
		return err
	}
	if err := d.waitUntilIdle(ctx, powerSettle); err != nil {
		return err
	}

	switch {
	case d.class == quant.BW:
		// Register 0x10 holds the previous frame for the waveform
		// delta; an all-white history gives a clean full refresh.
		if err := d.sendCommand(0x10); err != nil {
			return err
		}
		if err := d.sendData(bytes.Repeat([]byte{0xFF}, len(planes[0]))); err != nil {
			return err
		}
		if err := d.sendCommand(0x13); err != nil {
			return err
		}
		if err := d.sendData(planes[0]); err != nil {
			return err
		}
	case len(planes) == 1:
		// BWYR parts take the packed 2-bit stream on 0x10 alone
		if err := d.sendCommand(0x10); err != nil {
			return err
		}
		if err := d.sendData(planes[0]); err != nil {
			return err
		}
	default:
		if err := d.sendCommand(0x10); err != nil {
			return err
		}
		if err := d.sendData(planes[0]); err != nil {
			return err
		}
		if err := d.sendCommand(0x13); err != nil {
			return err
		}
		if err := d.sendData(planes[1]); err != nil {
			return err
		}
	}

	// Display refresh: latch RAM onto the glass
	if err := d.sendCommand(0x12); err != nil {
		return err
	}
	if err := d.waitUntilIdle(ctx, refreshSettle); err != nil {
		return err
	}

	// Power OFF between refreshes; the panel must not sit with the
	// source drivers energized.
	if err := d.sendCommand(0x02); err != nil {
		return err
	}
	return d.waitUntilIdle(ctx, powerSettle)
}

// Sleep puts the controller into deep sleep. Only a hardware reset
// wakes it again, so the device is halted afterwards.
func (d *Dev) Sleep() error {
	if d.halted {
		return nil
	}
	if err := d.sendCommand(0x07, 0xA5); err != nil {
		return err
	}
	d.halted = true
	return nil
}

// Halt powers the panel down and enters deep sleep.
func (d *Dev) Halt() error {
	if d.halted {
		return nil
	}
	if err := d.sendCommand(0x02); err != nil {
		return err
	}
	// The controller ignores deep sleep while power-off is in flight.
	if err := d.waitUntilIdle(context.Background(), powerSettle); err != nil {
		return err
	}
	return d.Sleep()
}

func (d *Dev) String() string {
	return fmt.Sprintf("panel.Dev{%s, %s, %dx%d %s}", d.c, d.dc, d.w, d.h, d.class)
}
