package soc

import (
	"encoding"
	"errors"
	"fmt"
)

// Family is a supported chip family.
type Family string

const (
	LPC55    Family = "lpc55"
	NRF52840 Family = "nrf52840"
)

var (
	// ErrAmbiguousSelection is returned when zero or more than one chip
	// family is selected.
	ErrAmbiguousSelection = errors.New("multiple or no SOC features set")

	// ErrTripletMismatch is returned when the compilation triplet does not
	// belong to the selected family.
	ErrTripletMismatch = errors.New("wrong build triplet")
)

type familyInfo struct {
	triplet  string
	template string
	infix    string
}

var families = map[Family]familyInfo{
	LPC55: {
		triplet:  "thumbv8m.main-none-eabi",
		template: "ld/lpc55-memory-template.x",
		infix:    "ld/lpc55",
	},
	NRF52840: {
		triplet:  "thumbv7em-none-eabihf",
		template: "ld/nrf52-memory-template.x",
		infix:    "ld/nrf52",
	},
}

// String returns the family name.
func (f Family) String() string {
	return string(f)
}

// Triplet returns the only compilation triplet valid for the family.
func (f Family) Triplet() string {
	return families[f].triplet
}

// TemplatePath returns the linker template path, relative to the manifest directory.
func (f Family) TemplatePath() string {
	return families[f].template
}

// OutputInfix returns the directory, relative to the manifest directory,
// that receives the generated linker script.
func (f Family) OutputInfix() string {
	return families[f].infix
}

var _ encoding.TextUnmarshaler = new(Family)

// UnmarshalText implements encoding.TextUnmarshaler for Family.
func (f *Family) UnmarshalText(data []byte) error {
	switch str := string(data); str {
	case "lpc55":
		*f = LPC55
	case "nrf52840":
		*f = NRF52840
	default:
		return fmt.Errorf(`illegal: "%s" is not a valid Family`, str)
	}
	return nil
}

// Selection is the raw input to Resolve: the active triplet and the
// chip-selection flags.
type Selection struct {
	Triplet  string
	LPC55    bool
	NRF52840 bool
}

// Resolve returns the single family selected by sel.
func Resolve(sel Selection) (Family, error) {
	var f Family
	switch {
	case sel.LPC55 && !sel.NRF52840:
		f = LPC55
	case sel.NRF52840 && !sel.LPC55:
		f = NRF52840
	default:
		return "", ErrAmbiguousSelection
	}

	if sel.Triplet != f.Triplet() {
		return "", fmt.Errorf("%w for %s: expecting %s, got %q",
			ErrTripletMismatch, f, f.Triplet(), sel.Triplet)
	}
	return f, nil
}
