// Package profile names the e-paper panels conversions target and maps
// each to its native geometry and color class.
package profile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rmitchellscott/epdkit/internal/config"
	"github.com/rmitchellscott/epdkit/internal/logging"
	"github.com/rmitchellscott/epdkit/internal/quant"
)

// ProfilesEnv names the YAML file merged over the builtin panel table.
// Entries from the file win on name collisions.
const ProfilesEnv = "EPDKIT_PROFILES"

// Profile describes one panel model.
type Profile struct {
	Name   string `yaml:"name" validate:"required"`
	Width  int    `yaml:"width" validate:"required,gt=0"`
	Height int    `yaml:"height" validate:"required,gt=0"`
	Class  string `yaml:"class" validate:"required,colorclass"`
	Note   string `yaml:"note,omitempty"`
}

// Good Display panels, geometry per the vendor datasheets. Width and
// height are the native pixel grid in the panel's default orientation.
var builtin = []Profile{
	{Name: "GDEW0154M10", Width: 152, Height: 152, Class: "BW", Note: "1.54in mono"},
	{Name: "GDEY0213B74", Width: 122, Height: 250, Class: "BW", Note: "2.13in mono"},
	{Name: "GDEY0266T90", Width: 152, Height: 296, Class: "BW", Note: "2.66in mono"},
	{Name: "GDEY027T91", Width: 176, Height: 264, Class: "BW", Note: "2.7in mono"},
	{Name: "GDEM029C90", Width: 128, Height: 296, Class: "BWY", Note: "2.9in black/white/yellow"},
	{Name: "GDEY029F51", Width: 168, Height: 384, Class: "BWYR", Note: "2.9in four color"},
	{Name: "GDEY037T03", Width: 240, Height: 416, Class: "4GRAY", Note: "3.7in four gray"},
	{Name: "GDEQ042Z21", Width: 400, Height: 300, Class: "BWR", Note: "4.2in black/white/red"},
	{Name: "GDEY0579T93", Width: 792, Height: 272, Class: "BW", Note: "5.79in mono"},
	{Name: "GDEY075T7", Width: 800, Height: 480, Class: "BW", Note: "7.5in mono"},
	{Name: "GDEY075Z08", Width: 800, Height: 480, Class: "BWR", Note: "7.5in black/white/red"},
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	err := v.RegisterValidation("colorclass", func(fl validator.FieldLevel) bool {
		_, err := quant.ParseClass(fl.Field().String())
		return err == nil
	})
	if err != nil {
		panic(err)
	}
	return v
}

// ColorClass resolves the profile's class name. Profiles reach callers
// through validation, so resolution only fails for hand-built values;
// those read as mono.
func (p *Profile) ColorClass() quant.Class {
	c, err := quant.ParseClass(p.Class)
	if err != nil {
		return quant.BW
	}
	return c
}

// Fit classifies how an image of a given size lines up with a panel.
type Fit int

const (
	// FitExact means the image matches the panel grid as is.
	FitExact Fit = iota
	// FitRotated means the image matches after a quarter turn.
	FitRotated
	// FitMismatch means no rotation makes the image match.
	FitMismatch
)

// Fit reports how an image of the given size lines up with the panel.
func (p *Profile) Fit(width, height int) Fit {
	switch {
	case width == p.Width && height == p.Height:
		return FitExact
	case width == p.Height && height == p.Width:
		return FitRotated
	default:
		return FitMismatch
	}
}

// Orient returns the clockwise rotation that aligns an image's long
// axis with the panel's. Zero when either is square or they already
// agree.
func (p *Profile) Orient(width, height int) int {
	if width == height || p.Width == p.Height {
		return 0
	}
	if (width > height) == (p.Width > p.Height) {
		return 0
	}
	return 90
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Load parses a YAML profile list and validates every entry. Unknown
// keys are rejected so typos surface instead of silently dropping
// fields.
func Load(r io.Reader) ([]Profile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f profileFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile: parse: %w", err)
	}
	for i := range f.Profiles {
		if err := validate.Struct(&f.Profiles[i]); err != nil {
			return nil, fmt.Errorf("profile: invalid entry %q: %w", f.Profiles[i].Name, err)
		}
	}
	return f.Profiles, nil
}

// LoadFile loads and validates the profile list at path.
func LoadFile(path string) ([]Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	defer f.Close()

	profiles, err := Load(f)
	if err != nil {
		return nil, err
	}
	logging.InfoWithComponent(logging.ComponentProfile, "Loaded panel profiles",
		"path", path, "count", len(profiles))
	return profiles, nil
}

// All returns the known profiles sorted by name: the builtin table plus
// any entries from the file named by EPDKIT_PROFILES.
func All() ([]Profile, error) {
	merged := make(map[string]Profile, len(builtin))
	for _, p := range builtin {
		merged[strings.ToUpper(p.Name)] = p
	}
	if path := config.Get(ProfilesEnv, ""); path != "" {
		extra, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		for _, p := range extra {
			merged[strings.ToUpper(p.Name)] = p
		}
	}

	out := make([]Profile, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Lookup finds a panel by name, ignoring case and surrounding space.
func Lookup(name string) (*Profile, error) {
	profiles, err := All()
	if err != nil {
		return nil, err
	}
	key := strings.ToUpper(strings.TrimSpace(name))
	for i := range profiles {
		if strings.ToUpper(profiles[i].Name) == key {
			p := profiles[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("profile: unknown panel %q", name)
}
