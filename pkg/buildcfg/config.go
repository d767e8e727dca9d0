// Package buildcfg loads and validates the firmware build configuration
// (cfg.toml): memory layout, USB identity and build metadata.
package buildcfg

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file name, relative to the manifest directory.
const DefaultPath = "cfg.toml"

// Format is the on-disk syntax of a configuration file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
	ErrMissingField      = errors.New("missing required field")
)

// Config is the parsed build configuration. It is immutable once loaded.
type Config struct {
	Parameters Parameters
	Identifier Identifier
	Build      Build
}

// Parameters describes the flash and filesystem regions.
type Parameters struct {
	FlashOrigin uint32

	// FlashEnd is optional; nil means the flash region runs up to
	// FilesystemBoundary.
	FlashEnd *uint32

	FilesystemBoundary uint32
	FilesystemEnd      uint32
}

// Identifier holds the USB and CCID identity of the device.
type Identifier struct {
	USBIDVendor     uint16
	USBIDProduct    uint16
	USBManufacturer string
	USBProduct      string
	CCIDIssuer      string
}

// Build is opaque build metadata. It is carried through but not interpreted.
type Build struct {
	BuildProfile string
	Board        string
}

// rawConfig mirrors the file layout. Pointer fields distinguish absent keys
// from zero values.
type rawConfig struct {
	Parameters *rawParameters `toml:"parameters" yaml:"parameters"`
	Identifier *rawIdentifier `toml:"identifier" yaml:"identifier"`
	Build      *rawBuild      `toml:"build" yaml:"build"`
}

type rawParameters struct {
	FlashOrigin        *uint32 `toml:"flash_origin" yaml:"flash_origin"`
	FlashEnd           *uint32 `toml:"flash_end" yaml:"flash_end"`
	FilesystemBoundary *uint32 `toml:"filesystem_boundary" yaml:"filesystem_boundary"`
	FilesystemEnd      *uint32 `toml:"filesystem_end" yaml:"filesystem_end"`
}

type rawIdentifier struct {
	USBIDVendor     *uint16 `toml:"usb_id_vendor" yaml:"usb_id_vendor"`
	USBIDProduct    *uint16 `toml:"usb_id_product" yaml:"usb_id_product"`
	USBManufacturer *string `toml:"usb_manufacturer" yaml:"usb_manufacturer"`
	USBProduct      *string `toml:"usb_product" yaml:"usb_product"`
	CCIDIssuer      *string `toml:"ccid_issuer" yaml:"ccid_issuer"`
}

type rawBuild struct {
	BuildProfile *string `toml:"build_profile" yaml:"build_profile"`
	Board        *string `toml:"board" yaml:"board"`
}

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

// Load reads, parses and validates the configuration at path. The raw file
// contents are returned alongside for digesting.
func Load(path string) (*Config, []byte, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, data, nil
}

// Parse decodes configuration bytes. Unknown keys are rejected and every
// missing required field is reported. Parse does not validate the memory
// layout; see Validate.
func Parse(data []byte, format Format) (*Config, error) {
	var raw rawConfig
	switch format {
	case FormatTOML:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parsing toml configuration: %w", err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing yaml configuration: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return raw.resolve()
}

func (r *rawConfig) resolve() (*Config, error) {
	var missing []error
	need := func(section, key string, present bool) {
		if !present {
			missing = append(missing, fmt.Errorf("%w: %s.%s", ErrMissingField, section, key))
		}
	}

	p := r.Parameters
	if p == nil {
		p = &rawParameters{}
	}
	id := r.Identifier
	if id == nil {
		id = &rawIdentifier{}
	}
	b := r.Build
	if b == nil {
		b = &rawBuild{}
	}

	need("parameters", "flash_origin", p.FlashOrigin != nil)
	need("parameters", "filesystem_boundary", p.FilesystemBoundary != nil)
	need("parameters", "filesystem_end", p.FilesystemEnd != nil)
	need("identifier", "usb_id_vendor", id.USBIDVendor != nil)
	need("identifier", "usb_id_product", id.USBIDProduct != nil)
	need("identifier", "usb_manufacturer", id.USBManufacturer != nil)
	need("identifier", "usb_product", id.USBProduct != nil)
	need("identifier", "ccid_issuer", id.CCIDIssuer != nil)
	need("build", "build_profile", b.BuildProfile != nil)
	need("build", "board", b.Board != nil)
	if len(missing) > 0 {
		return nil, errors.Join(missing...)
	}

	cfg := &Config{
		Parameters: Parameters{
			FlashOrigin:        *p.FlashOrigin,
			FilesystemBoundary: *p.FilesystemBoundary,
			FilesystemEnd:      *p.FilesystemEnd,
		},
		Identifier: Identifier{
			USBIDVendor:     *id.USBIDVendor,
			USBIDProduct:    *id.USBIDProduct,
			USBManufacturer: *id.USBManufacturer,
			USBProduct:      *id.USBProduct,
			CCIDIssuer:      *id.CCIDIssuer,
		},
		Build: Build{
			BuildProfile: *b.BuildProfile,
			Board:        *b.Board,
		},
	}
	if p.FlashEnd != nil {
		end := *p.FlashEnd
		cfg.Parameters.FlashEnd = &end
	}
	return cfg, nil
}

// FlashEnd returns the configured flash end, or the filesystem boundary
// when none is set.
func (c *Config) FlashEnd() uint32 {
	if c.Parameters.FlashEnd != nil {
		return *c.Parameters.FlashEnd
	}
	return c.Parameters.FilesystemBoundary
}

// Validate checks the memory layout invariants.
func (c *Config) Validate() error {
	_, err := c.Layout()
	return err
}

// Digest returns the hex BLAKE2b-256 of raw configuration bytes.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
