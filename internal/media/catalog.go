// Package media describes the background video sources and decides, per
// visitor, whether and what to load.
package media

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed sources.yaml
var defaultCatalog []byte

// Device is the visitor's form factor.
type Device string

const (
	DeviceMobile  Device = "mobile"
	DeviceDesktop Device = "desktop"
)

// mobileMaxWidth is the first viewport width treated as desktop.
const mobileMaxWidth = 768

var mobileUA = regexp.MustCompile(`Android|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// DetectDevice classifies a visitor by viewport width (0 when unknown) and
// user agent.
func DetectDevice(viewportWidth int, userAgent string) Device {
	if viewportWidth > 0 && viewportWidth < mobileMaxWidth {
		return DeviceMobile
	}
	if mobileUA.MatchString(userAgent) {
		return DeviceMobile
	}
	return DeviceDesktop
}

// Source is one candidate media resource.
type Source struct {
	Src  string `yaml:"src" json:"src"`
	Type string `yaml:"type" json:"type"`
	// Device restricts the source to one form factor; empty matches all.
	Device Device `yaml:"device,omitempty" json:"-"`
}

// Fallback is the static background shown instead of the video.
type Fallback struct {
	Background string `yaml:"background" json:"background"`
	Gradient   string `yaml:"gradient" json:"gradient"`
}

// Catalog lists the background video's sources in preference order.
type Catalog struct {
	Poster   string   `yaml:"poster"`
	Fallback Fallback `yaml:"fallback"`
	Sources  []Source `yaml:"sources"`
}

// LoadCatalog reads a catalogue from path, or the built-in one when path
// is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalog)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read media catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalogue.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse media catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every source is usable.
func (c *Catalog) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("media catalog has no sources")
	}
	for i, s := range c.Sources {
		if s.Src == "" {
			return fmt.Errorf("media source %d: src is required", i)
		}
		if !strings.HasPrefix(s.Type, "video/") {
			return fmt.Errorf("media source %d: type %q is not a video type", i, s.Type)
		}
		switch s.Device {
		case "", DeviceMobile, DeviceDesktop:
		default:
			return fmt.Errorf("media source %d: unknown device %q", i, s.Device)
		}
	}
	return nil
}

// Select returns the sources for device in catalogue order. When codecs is
// non-nil, types it marks unsupported are skipped; unlisted types are kept.
func (c *Catalog) Select(device Device, codecs map[string]bool) []Source {
	out := make([]Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Device != "" && s.Device != device {
			continue
		}
		if supported, known := codecs[s.Type]; known && !supported {
			continue
		}
		out = append(out, s)
	}
	return out
}
