// Package soc identifies the microcontroller family a firmware build targets.
//
// Exactly one chip-selection flag must be set, and the compilation triplet
// must be the one that family is built for. Everything downstream (linker
// template, output directory, search paths) is keyed on the resolved Family.
package soc
