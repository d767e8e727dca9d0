// Package constgen renders the generated Go constants module consumed by
// the firmware build.
package constgen

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"golang.org/x/tools/imports"

	"github.com/tokenfw/runner-gen/pkg/buildcfg"
	"github.com/tokenfw/runner-gen/pkg/vcs"
)

// FileName is the name of the generated constants file.
const FileName = "build_constants.go"

// DefaultPackage is the package clause used when Module.Package is empty.
const DefaultPackage = "buildconst"

// Module is a generated constants file.
type Module struct {
	Package   string
	Generator string
	Constants []Constant
}

var funcMap = template.FuncMap{
	"firstLine": func(s string) string {
		s, _, _ = strings.Cut(s, "\n")
		return s
	},
}

var moduleTmpl = template.Must(template.New("module").Funcs(funcMap).Parse(
	`// Code generated by {{.Generator}}. DO NOT EDIT.

// Package {{.Package}} holds build-time constants for the firmware runner.
package {{.Package}}
{{range .Decls}}
{{- if .Doc}}
// {{.Name}} {{firstLine .Doc}}
{{- end}}
{{.Decl}}
{{end -}}
`))

type declData struct {
	Name string
	Doc  string
	Decl string
}

// Render returns the unformatted source of m.
func (m *Module) Render() (string, error) {
	data := struct {
		Package   string
		Generator string
		Decls     []declData
	}{
		Package:   m.Package,
		Generator: m.Generator,
	}
	if data.Package == "" {
		data.Package = DefaultPackage
	}
	if data.Generator == "" {
		data.Generator = "runner-gen"
	}

	seen := make(map[string]bool, len(m.Constants))
	for _, c := range m.Constants {
		if seen[c.Name] {
			return "", fmt.Errorf("duplicate constant %s", c.Name)
		}
		seen[c.Name] = true

		decl, err := c.Decl()
		if err != nil {
			return "", err
		}
		data.Decls = append(data.Decls, declData{Name: c.Name, Doc: c.Doc, Decl: decl})
	}

	var b strings.Builder
	if err := moduleTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering constants: %w", err)
	}
	return b.String(), nil
}

// Write renders, gofmts and writes m to path.
func (m *Module) Write(path string) error {
	code, err := m.Render()
	if err != nil {
		return err
	}
	return writeFormatted(path, code)
}

// writeFormatted formats Go source code with goimports and writes it to a file.
func writeFormatted(path string, code string) error {
	formatted, err := imports.Process(path, []byte(code), nil)
	if err != nil {
		// Write unformatted so you can debug the generator output
		_ = os.WriteFile(path+".broken", []byte(code), 0o644)
		return fmt.Errorf("goimports %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	// Leftover from an earlier failed run.
	if err := os.Remove(path + ".broken"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s.broken: %w", filepath.Base(path), err)
	}
	return nil
}

// Provenance is the non-configuration input to the constants module.
type Provenance struct {
	Revision     vcs.Revision
	ConfigDigest string
}

// FromConfig builds the firmware constant set. truncated reports whether
// the CCID issuer had to be cut to IssuerLen bytes.
func FromConfig(cfg *buildcfg.Config, layout buildcfg.Layout, prov Provenance) (consts []Constant, truncated bool) {
	issuer, truncated := IssuerBytes(cfg.Identifier.CCIDIssuer)
	id := cfg.Identifier

	consts = []Constant{
		{Name: "PkgHash", Kind: String, Value: prov.Revision.Hash, Doc: "is the full commit hash of the build."},
		{Name: "PkgHashShort", Kind: String, Value: prov.Revision.Short},

		{Name: "USBManufacturer", Kind: String, Value: id.USBManufacturer},
		{Name: "USBProduct", Kind: String, Value: id.USBProduct},
		{Name: "USBIDVendor", Kind: Uint16, Value: id.USBIDVendor},
		{Name: "USBIDProduct", Kind: Uint16, Value: id.USBIDProduct},

		{Name: "CCIDIssuer", Kind: Bytes13, Value: issuer, Doc: "is the zero-padded CCID issuer identifier."},

		{Name: "ConfigFilesystemBoundary", Kind: Address, Value: layout.FilesystemBase},
		{Name: "ConfigFilesystemEnd", Kind: Address, Value: layout.FilesystemEnd},
		{Name: "ConfigFlashBase", Kind: Address, Value: layout.FlashBase},
		{Name: "ConfigFlashEnd", Kind: Address, Value: layout.FlashEnd},
		{Name: "ConfigFlashLengthKiB", Kind: Uint32, Value: layout.FlashKiB()},
		{Name: "ConfigFilesystemLengthKiB", Kind: Uint32, Value: layout.FilesystemKiB()},

		{Name: "BuildProfile", Kind: String, Value: cfg.Build.BuildProfile},
		{Name: "Board", Kind: String, Value: cfg.Build.Board},
		{Name: "ConfigDigest", Kind: String, Value: prov.ConfigDigest, Doc: "is the BLAKE2b-256 digest of the configuration file."},
	}
	return consts, truncated
}
