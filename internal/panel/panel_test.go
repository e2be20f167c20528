package panel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/quant"
)

// testDev opens a device against a recording SPI port with an idle
// BUSY pin, so every wait returns as soon as it polls.
func testDev(t *testing.T, opts *Opts) (*Dev, *spitest.Record) {
	t.Helper()
	port := &spitest.Record{}
	dc := &gpiotest.Pin{N: "DC"}
	if opts.RST == nil {
		opts.RST = &gpiotest.Pin{N: "RST"}
	}
	if opts.BUSY == nil {
		opts.BUSY = &gpiotest.Pin{N: "BUSY", L: gpio.High}
	}
	dev, err := NewSPI(port, dc, opts)
	if err != nil {
		t.Fatalf("NewSPI: %v", err)
	}
	return dev, port
}

func op(t *testing.T, port *spitest.Record, i int) []byte {
	t.Helper()
	if i >= len(port.Ops) {
		t.Fatalf("want op %d, only %d recorded", i, len(port.Ops))
	}
	return port.Ops[i].W
}

// initOps is the number of SPI transfers the configuration sequence
// produces: five commands, each followed by its parameter bytes.
const initOps = 10

func TestNewSPIConfigures(t *testing.T) {
	rst := &gpiotest.Pin{N: "RST"}
	_, port := testDev(t, &Opts{W: 16, H: 8, Class: quant.BWR, RST: rst})

	if len(port.Ops) != initOps {
		t.Fatalf("init produced %d transfers, want %d", len(port.Ops), initOps)
	}
	if got := op(t, port, 0); !bytes.Equal(got, []byte{0x01}) {
		t.Errorf("first command = %#v, want power setting 0x01", got)
	}
	if got := op(t, port, 5); !bytes.Equal(got, []byte{0x0F}) {
		t.Errorf("panel setting mode = %#v, want KWR 0x0F", got)
	}
	if got := op(t, port, 6); !bytes.Equal(got, []byte{0x61}) {
		t.Errorf("op 6 = %#v, want resolution command 0x61", got)
	}
	if got := op(t, port, 7); !bytes.Equal(got, []byte{0x00, 0x10, 0x00, 0x08}) {
		t.Errorf("resolution = %#v, want 16x8", got)
	}
	if got := op(t, port, 9); !bytes.Equal(got, []byte{0x77}) {
		t.Errorf("VCOM interval = %#v, want 0x77", got)
	}
	if rst.Read() != gpio.High {
		t.Error("RST left low after reset pulse")
	}
}

func TestNewSPIMonoMode(t *testing.T) {
	_, port := testDev(t, &Opts{W: 8, H: 8, Class: quant.BW})
	if got := op(t, port, 5); !bytes.Equal(got, []byte{0x1F}) {
		t.Errorf("panel setting mode = %#v, want KW 0x1F", got)
	}
}

func TestNewSPIRoundsWidthToBytes(t *testing.T) {
	// A 122-wide panel is driven as 128 columns, matching the pitch
	// the packer produces.
	_, port := testDev(t, &Opts{W: 122, H: 250, Class: quant.BW})
	if got := op(t, port, 7); !bytes.Equal(got, []byte{0x00, 0x80, 0x00, 0xFA}) {
		t.Errorf("resolution = %#v, want 128x250", got)
	}
}

func TestNewSPIValidation(t *testing.T) {
	tests := []struct {
		name string
		opts *Opts
		want string
	}{
		{"nil options", nil, "panel geometry"},
		{"width too small", &Opts{W: 4, H: 100, Class: quant.BW}, "width"},
		{"width too large", &Opts{W: 1000, H: 100, Class: quant.BW}, "width"},
		{"height too small", &Opts{W: 100, H: 4, Class: quant.BW}, "height"},
		{"height too large", &Opts{W: 100, H: 700, Class: quant.BW}, "height"},
		{"unknown class", &Opts{W: 100, H: 100, Class: quant.Class(9)}, "color class"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSPI(&spitest.Record{}, &gpiotest.Pin{N: "DC"}, tt.opts)
			if err == nil {
				t.Fatal("NewSPI accepted bad options")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestPushMono(t *testing.T) {
	dev, port := testDev(t, &Opts{W: 8, H: 8, Class: quant.BW})

	// Alternating white and black rows
	set := plane.Pack(8, 8, quant.BW, func(x, y int) uint8 {
		if y%2 == 0 {
			return 1
		}
		return 0
	})

	if err := dev.Push(context.Background(), set); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if got := op(t, port, initOps); !bytes.Equal(got, []byte{0x04}) {
		t.Fatalf("update starts with %#v, want power on 0x04", got)
	}
	if got := op(t, port, initOps+1); !bytes.Equal(got, []byte{0x10}) {
		t.Errorf("op = %#v, want previous-frame register 0x10", got)
	}
	if got := op(t, port, initOps+2); !bytes.Equal(got, bytes.Repeat([]byte{0xFF}, 8)) {
		t.Errorf("previous frame = %#v, want all white", got)
	}
	if got := op(t, port, initOps+3); !bytes.Equal(got, []byte{0x13}) {
		t.Errorf("op = %#v, want frame register 0x13", got)
	}
	if got := op(t, port, initOps+4); !bytes.Equal(got, set.Planes[0]) {
		t.Errorf("frame payload = %#v, want packed plane %#v", got, set.Planes[0])
	}
	if got := op(t, port, initOps+5); !bytes.Equal(got, []byte{0x12}) {
		t.Errorf("op = %#v, want refresh 0x12", got)
	}
	if got := op(t, port, initOps+6); !bytes.Equal(got, []byte{0x02}) {
		t.Errorf("op = %#v, want power off 0x02", got)
	}
	if len(port.Ops) != initOps+7 {
		t.Errorf("push produced %d transfers, want %d", len(port.Ops)-initOps, 7)
	}
}

func TestPushTwoPlane(t *testing.T) {
	dev, port := testDev(t, &Opts{W: 16, H: 8, Class: quant.BWR})

	// Left half white, right half red
	set := plane.Pack(16, 8, quant.BWR, func(x, y int) uint8 {
		if x < 8 {
			return 1
		}
		return 2
	})

	if err := dev.Push(context.Background(), set); err != nil {
		t.Fatalf("Push: %v", err)
	}

	if got := op(t, port, initOps+2); !bytes.Equal(got, set.Planes[0]) {
		t.Errorf("register 0x10 payload = %#v, want b/w plane %#v", got, set.Planes[0])
	}
	if got := op(t, port, initOps+4); !bytes.Equal(got, set.Planes[1]) {
		t.Errorf("register 0x13 payload = %#v, want chromatic plane %#v", got, set.Planes[1])
	}
}

func TestClearFourColor(t *testing.T) {
	dev, port := testDev(t, &Opts{W: 16, H: 8, Class: quant.BWYR})

	if err := dev.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	// Packed 2-bit stream goes to 0x10 alone, then straight to refresh
	if got := op(t, port, initOps+1); !bytes.Equal(got, []byte{0x10}) {
		t.Errorf("op = %#v, want data register 0x10", got)
	}
	if got := op(t, port, initOps+2); !bytes.Equal(got, bytes.Repeat([]byte{0x55}, 32)) {
		t.Errorf("payload = %#v, want 32 bytes of white codes", got)
	}
	if got := op(t, port, initOps+3); !bytes.Equal(got, []byte{0x12}) {
		t.Errorf("op = %#v, want refresh 0x12", got)
	}
	if len(port.Ops) != initOps+5 {
		t.Errorf("clear produced %d transfers, want %d", len(port.Ops)-initOps, 5)
	}
}

func TestPushRejectsMismatchedFrames(t *testing.T) {
	dev, _ := testDev(t, &Opts{W: 16, H: 8, Class: quant.BWR})

	small := plane.Pack(8, 8, quant.BWR, func(x, y int) uint8 { return 0 })
	if err := dev.Push(context.Background(), small); err == nil || !strings.Contains(err.Error(), "frame is 8x8") {
		t.Errorf("mismatched geometry error = %v", err)
	}

	wrong := plane.Pack(16, 8, quant.BWY, func(x, y int) uint8 { return 0 })
	if err := dev.Push(context.Background(), wrong); err == nil || !strings.Contains(err.Error(), "class") {
		t.Errorf("mismatched class error = %v", err)
	}
}

func TestHalt(t *testing.T) {
	dev, port := testDev(t, &Opts{W: 16, H: 8, Class: quant.BWR})

	if err := dev.Halt(); err != nil {
		t.Fatalf("Halt: %v", err)
	}
	if got := op(t, port, initOps); !bytes.Equal(got, []byte{0x02}) {
		t.Errorf("op = %#v, want power off 0x02", got)
	}
	if got := op(t, port, initOps+1); !bytes.Equal(got, []byte{0x07}) {
		t.Errorf("op = %#v, want deep sleep 0x07", got)
	}
	if got := op(t, port, initOps+2); !bytes.Equal(got, []byte{0xA5}) {
		t.Errorf("op = %#v, want deep sleep check code 0xA5", got)
	}

	n := len(port.Ops)
	if err := dev.Halt(); err != nil {
		t.Fatalf("second Halt: %v", err)
	}
	if len(port.Ops) != n {
		t.Error("second Halt sent more commands")
	}

	set := plane.Pack(16, 8, quant.BWR, func(x, y int) uint8 { return 1 })
	if err := dev.Push(context.Background(), set); err == nil || !strings.Contains(err.Error(), "halted") {
		t.Errorf("Push after Halt error = %v", err)
	}
	if err := dev.Clear(context.Background()); err == nil || !strings.Contains(err.Error(), "halted") {
		t.Errorf("Clear after Halt error = %v", err)
	}
}

func TestWaitUntilIdle(t *testing.T) {
	t.Run("fallback delay without busy pin", func(t *testing.T) {
		d := &Dev{}
		start := time.Now()
		if err := d.waitUntilIdle(context.Background(), 5*time.Millisecond); err != nil {
			t.Fatalf("waitUntilIdle: %v", err)
		}
		if time.Since(start) < 5*time.Millisecond {
			t.Error("returned before the settle delay elapsed")
		}
	})

	t.Run("fallback honors context", func(t *testing.T) {
		d := &Dev{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := d.waitUntilIdle(ctx, time.Minute); !errors.Is(err, context.Canceled) {
			t.Errorf("waitUntilIdle = %v, want context.Canceled", err)
		}
	})

	t.Run("polls until busy releases", func(t *testing.T) {
		busy := &gpiotest.Pin{N: "BUSY", L: gpio.Low}
		d := &Dev{busy: busy}
		go func() {
			time.Sleep(30 * time.Millisecond)
			busy.Out(gpio.High)
		}()
		start := time.Now()
		if err := d.waitUntilIdle(context.Background(), powerSettle); err != nil {
			t.Fatalf("waitUntilIdle: %v", err)
		}
		if time.Since(start) < 30*time.Millisecond {
			t.Error("returned while the controller was still busy")
		}
	})

	t.Run("poll honors context", func(t *testing.T) {
		d := &Dev{busy: &gpiotest.Pin{N: "BUSY", L: gpio.Low}}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := d.waitUntilIdle(ctx, powerSettle); !errors.Is(err, context.Canceled) {
			t.Errorf("waitUntilIdle = %v, want context.Canceled", err)
		}
	})
}

func TestDevString(t *testing.T) {
	dev, _ := testDev(t, &Opts{W: 16, H: 8, Class: quant.BWR})
	if got := dev.String(); !strings.Contains(got, "16x8 bwr") {
		t.Errorf("String() = %q, want the geometry and class", got)
	}
}
