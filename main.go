package main

import (
	// standard library
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	// third-party
	"github.com/joho/godotenv"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	// internal
	"github.com/rmitchellscott/epdkit/internal/config"
	"github.com/rmitchellscott/epdkit/internal/decode"
	"github.com/rmitchellscott/epdkit/internal/emit"
	"github.com/rmitchellscott/epdkit/internal/logging"
	"github.com/rmitchellscott/epdkit/internal/panel"
	"github.com/rmitchellscott/epdkit/internal/pipeline"
	"github.com/rmitchellscott/epdkit/internal/plane"
	"github.com/rmitchellscott/epdkit/internal/profile"
	"github.com/rmitchellscott/epdkit/internal/quant"
	"github.com/rmitchellscott/epdkit/internal/server"
	"github.com/rmitchellscott/epdkit/internal/store"
	"github.com/rmitchellscott/epdkit/internal/version"
)

func main() {
	_ = godotenv.Load()
	logging.Setup()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println(version.String())
		return
	}

	cmd := "help"
	var args []string
	if len(os.Args) > 1 {
		cmd = os.Args[1]
		args = os.Args[2:]
	}

	var err error
	switch cmd {
	case "convert":
		err = runConvert(args)
	case "serve":
		err = runServe(args)
	case "push":
		err = runPush(args)
	case "profiles":
		err = runProfiles(args)
	case "version":
		fmt.Println(version.String())
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "epdkit: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}
	if err != nil {
		logging.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `epdkit converts raster images into packed e-paper planes.

Usage:

  epdkit <command> [flags] [args]

Commands:

  convert   convert image files to C arrays, raw planes or previews
  serve     run the HTTP conversion and device registry service
  push      convert one image and drive a panel over SPI
  profiles  list known panel profiles
  version   print version information

Run "epdkit <command> -h" for the flags of a command.
`)
}

// optionsFor resolves the shared conversion flags. A profile name wins
// over a bare class name and pins the panel geometry expectations.
func optionsFor(className, profileName string, dither, invert, flip, mirror bool, rotate int) (pipeline.Options, *profile.Profile, error) {
	opts := pipeline.Options{
		Dither: dither,
		Invert: invert,
		Flip:   flip,
		Mirror: mirror,
		Rotate: rotate,
	}
	if profileName != "" {
		prof, err := profile.Lookup(profileName)
		if err != nil {
			return opts, nil, err
		}
		opts.Class = prof.ColorClass()
		return opts, prof, nil
	}
	class, err := quant.ParseClass(className)
	if err != nil {
		return opts, nil, err
	}
	opts.Class = class
	return opts, nil, nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	className := fs.String("class", "bw", "palette class: bw, bwr, bwy, bwyr or 4gray")
	profileName := fs.String("profile", "", "panel profile; overrides -class")
	dither := fs.Bool("dither", false, "apply Floyd-Steinberg error diffusion")
	invert := fs.Bool("invert", false, "invert source pixels before converting")
	flip := fs.Bool("flip", false, "flip vertically")
	mirror := fs.Bool("mirror", false, "mirror horizontally")
	rotate := fs.Int("rotate", 0, "rotate clockwise: 0, 90, 180 or 270")
	format := fs.String("format", "c", "output format: c, bin or png")
	outDir := fs.String("out", "", "output directory, \"-\" for stdout (default alongside each input)")
	name := fs.String("name", "", "C array base name (single input only, default from the file name)")
	workers := fs.Int("workers", config.GetInt("EPDKIT_WORKERS", 3), "concurrent conversions")
	fs.Parse(args)

	files := fs.Args()
	if len(files) == 0 {
		return errors.New("convert: no input files")
	}
	if *name != "" && len(files) > 1 {
		return errors.New("convert: -name applies to a single input only")
	}

	opts, _, err := optionsFor(*className, *profileName, *dither, *invert, *flip, *mirror, *rotate)
	if err != nil {
		return err
	}

	jobs := make([]pipeline.Job, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("convert: %w", err)
		}
		jobs = append(jobs, pipeline.Job{Name: f, Data: data, Options: opts})
	}

	results := pipeline.ConvertAll(context.Background(), jobs, *workers)

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			logging.ErrorWithComponent(logging.ComponentConvert, "Conversion failed",
				"file", res.Name, "error", res.Err)
			failed++
			continue
		}
		if err := writeArtifacts(res, *format, *outDir, *name); err != nil {
			logging.ErrorWithComponent(logging.ComponentConvert, "Writing output failed",
				"file", res.Name, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("convert: %d of %d files failed", failed, len(results))
	}
	return nil
}

// writeArtifacts persists one converted file in the requested format.
// Raw planes follow the C array naming: one file per plane with an _n
// suffix, the packed BWYR plane a bare stem.
func writeArtifacts(res pipeline.JobResult, format, outDir, baseName string) error {
	stem := strings.TrimSuffix(filepath.Base(res.Name), filepath.Ext(res.Name))
	if baseName != "" {
		stem = baseName
	}
	set := res.Result.Set

	if outDir == "-" {
		var out []byte
		var err error
		switch format {
		case "c", "carray":
			out = emit.CArray(set, emit.CName(stem))
		case "bin":
			out = set.Bytes()
		case "png":
			out, err = emit.PreviewPNG(set)
		default:
			return fmt.Errorf("convert: unknown format %q (want c, bin or png)", format)
		}
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}

	dir := filepath.Dir(res.Name)
	if outDir != "" {
		dir = outDir
	}

	switch format {
	case "c", "carray":
		path := filepath.Join(dir, stem+".c")
		if err := os.WriteFile(path, emit.CArray(set, emit.CName(stem)), 0o644); err != nil {
			return err
		}
		logging.InfoWithComponent(logging.ComponentConvert, "Wrote C array",
			"file", path, "class", set.Class.String(), "duration_ms", res.DurationMs)
	case "bin":
		for n, p := range set.Planes {
			path := filepath.Join(dir, rawPlaneName(set, stem, n))
			if err := os.WriteFile(path, p, 0o644); err != nil {
				return err
			}
			logging.InfoWithComponent(logging.ComponentConvert, "Wrote raw plane",
				"file", path, "bytes", len(p))
		}
	case "png":
		png, err := emit.PreviewPNG(set)
		if err != nil {
			return err
		}
		path := filepath.Join(dir, stem+"_preview.png")
		if err := os.WriteFile(path, png, 0o644); err != nil {
			return err
		}
		logging.InfoWithComponent(logging.ComponentConvert, "Wrote preview",
			"file", path, "width", set.Width, "height", set.Height)
	default:
		return fmt.Errorf("convert: unknown format %q (want c, bin or png)", format)
	}
	return nil
}

func rawPlaneName(set *plane.Set, stem string, n int) string {
	if set.Class == quant.BWYR {
		return stem + ".bin"
	}
	return fmt.Sprintf("%s_%d.bin", stem, n)
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "listen address (default \":\"+PORT)")
	fs.Parse(args)

	if *addr == "" {
		*addr = ":" + config.Get("PORT", "8080")
	}

	logging.InfoWithComponent(logging.ComponentStartup, "Starting epdkit", "version", version.String())

	if err := store.Initialize(); err != nil {
		return fmt.Errorf("serve: database: %w", err)
	}
	defer store.Close()

	router := server.New(store.DB)

	srv := &http.Server{
		Addr:    *addr,
		Handler: router,
	}

	go func() {
		logging.InfoWithComponent(logging.ComponentStartup, "Listening", "address", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.ErrorWithComponent(logging.ComponentStartup, "Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan struct{})
	go sweepHistory(stop)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.InfoWithComponent(logging.ComponentShutdown, "Shutting down server")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("serve: forced shutdown: %w", err)
	}
	logging.InfoWithComponent(logging.ComponentShutdown, "Server stopped")
	return nil
}

// sweepHistory deletes conversion records older than HISTORY_RETENTION
// once an hour. A zero or negative retention disables the sweep.
func sweepHistory(stop <-chan struct{}) {
	retention := config.GetDuration("HISTORY_RETENTION", 30*24*time.Hour)
	if retention <= 0 {
		return
	}
	screens := store.NewScreenService(store.DB)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, err := screens.SweepHistory(retention)
			if err != nil {
				logging.ErrorWithComponent(logging.ComponentDatabase, "History sweep failed", "error", err)
			} else if n > 0 {
				logging.InfoWithComponent(logging.ComponentDatabase, "Swept conversion history", "deleted", n)
			}
		}
	}
}

func runPush(args []string) error {
	fs := flag.NewFlagSet("push", flag.ExitOnError)
	profileName := fs.String("profile", "", "panel profile (required)")
	dither := fs.Bool("dither", false, "apply Floyd-Steinberg error diffusion")
	invert := fs.Bool("invert", false, "invert source pixels before converting")
	flip := fs.Bool("flip", false, "flip vertically")
	mirror := fs.Bool("mirror", false, "mirror horizontally")
	clear := fs.Bool("clear", false, "white out the panel instead of pushing an image")
	spiDev := fs.String("spi", config.Get("EPDKIT_SPI_DEV", ""), "SPI port name (empty for the first available)")
	dcPin := fs.String("dc", config.Get("EPDKIT_DC_PIN", "GPIO25"), "data/command pin")
	rstPin := fs.String("rst", config.Get("EPDKIT_RST_PIN", "GPIO17"), "reset pin (empty to skip hardware reset)")
	busyPin := fs.String("busy", config.Get("EPDKIT_BUSY_PIN", "GPIO24"), "busy pin (empty for timed waits)")
	timeout := fs.Duration("timeout", 90*time.Second, "deadline for the full refresh cycle")
	fs.Parse(args)

	if *profileName == "" {
		return errors.New("push: -profile is required")
	}
	prof, err := profile.Lookup(*profileName)
	if err != nil {
		return err
	}

	var set *plane.Set
	if !*clear {
		if fs.NArg() != 1 {
			return errors.New("push: exactly one image file expected")
		}
		file := fs.Arg(0)
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}

		opts := pipeline.Options{
			Class:  prof.ColorClass(),
			Dither: *dither,
			Invert: *invert,
			Flip:   *flip,
			Mirror: *mirror,
		}

		// Probe the geometry first: a portrait image on a landscape
		// panel (or the reverse) is rotated into place when the depth
		// supports it; anything else must match exactly.
		src, _, err := decode.Decode(data)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		switch prof.Fit(src.Width, src.Height) {
		case profile.FitRotated:
			opts.Rotate = 90
		case profile.FitMismatch:
			return fmt.Errorf("push: image is %dx%d, %s is %dx%d",
				src.Width, src.Height, prof.Name, prof.Width, prof.Height)
		}

		res, err := pipeline.Run(data, opts)
		if err != nil {
			return fmt.Errorf("push: %w", err)
		}
		set = res.Set
	}

	if _, err := host.Init(); err != nil {
		return fmt.Errorf("push: periph host init: %w", err)
	}
	port, err := spireg.Open(*spiDev)
	if err != nil {
		return fmt.Errorf("push: open SPI: %w", err)
	}
	defer port.Close()

	dc := gpioreg.ByName(*dcPin)
	if dc == nil {
		return fmt.Errorf("push: GPIO pin %s not found", *dcPin)
	}
	popts := &panel.Opts{
		W:     prof.Width,
		H:     prof.Height,
		Class: prof.ColorClass(),
	}
	if *rstPin != "" {
		if popts.RST = gpioreg.ByName(*rstPin); popts.RST == nil {
			return fmt.Errorf("push: GPIO pin %s not found", *rstPin)
		}
	}
	if *busyPin != "" {
		var pin gpio.PinIO
		if pin = gpioreg.ByName(*busyPin); pin == nil {
			return fmt.Errorf("push: GPIO pin %s not found", *busyPin)
		}
		popts.BUSY = pin
	}

	dev, err := panel.NewSPI(port, dc, popts)
	if err != nil {
		return err
	}
	defer dev.Halt()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *clear {
		if err := dev.Clear(ctx); err != nil {
			return err
		}
		logging.InfoWithComponent(logging.ComponentPanel, "Cleared panel", "profile", prof.Name)
		return nil
	}
	if err := dev.Push(ctx, set); err != nil {
		return err
	}
	logging.InfoWithComponent(logging.ComponentPanel, "Pushed image",
		"profile", prof.Name, "file", fs.Arg(0), "class", prof.ColorClass().String())
	return nil
}

func runProfiles(args []string) error {
	fs := flag.NewFlagSet("profiles", flag.ExitOnError)
	fs.Parse(args)

	profs, err := profile.All()
	if err != nil {
		return err
	}
	for _, p := range profs {
		fmt.Printf("%-14s %4dx%-4d %-6s %s\n", p.Name, p.Width, p.Height, p.ColorClass(), p.Note)
	}
	return nil
}
