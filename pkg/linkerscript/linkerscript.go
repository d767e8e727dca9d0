// Package linkerscript renders a chip's memory.x linker script from its
// template and the validated memory layout.
package linkerscript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/tokenfw/runner-gen/pkg/buildcfg"
)

// FileName is the name of the generated linker script.
const FileName = "custom_memory.x"

// Banner is prepended to every generated script.
const Banner = "/* DO NOT EDIT THIS FILE */\n/* This file was generated by runner-gen */\n"

// Template placeholders.
const (
	FlashLength = "##FLASH_LENGTH##"
	FSLength    = "##FS_LENGTH##"
	FSBase      = "##FS_BASE##"
	FlashBase   = "##FLASH_BASE##"
)

var (
	ErrMissingPlaceholder    = errors.New("template is missing placeholder")
	ErrUnresolvedPlaceholder = errors.New("unresolved placeholder")
)

var placeholderRE = regexp.MustCompile(`##[A-Za-z0-9_]+##`)

// Substitute replaces every placeholder in tmpl with its value from layout.
// Each placeholder must occur at least once, and no ##NAME## token may
// remain afterwards.
func Substitute(tmpl string, layout buildcfg.Layout) (string, error) {
	if err := layout.Check(); err != nil {
		return "", err
	}

	values := []struct{ key, val string }{
		{FlashLength, strconv.FormatUint(uint64(layout.FlashKiB()), 10)},
		{FSLength, strconv.FormatUint(uint64(layout.FilesystemKiB()), 10)},
		{FSBase, strconv.FormatUint(uint64(layout.FilesystemBase), 16)},
		{FlashBase, strconv.FormatUint(uint64(layout.FlashBase), 16)},
	}

	var missing []error
	pairs := make([]string, 0, 2*len(values))
	for _, v := range values {
		if !strings.Contains(tmpl, v.key) {
			missing = append(missing, fmt.Errorf("%w %s", ErrMissingPlaceholder, v.key))
		}
		pairs = append(pairs, v.key, v.val)
	}
	if len(missing) > 0 {
		return "", errors.Join(missing...)
	}

	out := strings.NewReplacer(pairs...).Replace(tmpl)
	if left := placeholderRE.FindAllString(out, -1); len(left) > 0 {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(dedupe(left), ", "))
	}
	return out, nil
}

// Generate reads the template at templatePath, substitutes layout into it
// and writes the result with Banner to outPath. The output directory is
// created if needed.
func Generate(templatePath, outPath string, layout buildcfg.Layout) error {
	tmpl, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("cannot read memory.x template file: %w", err)
	}

	script, err := Substitute(string(tmpl), layout)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(templatePath), err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(outPath), err)
	}
	if err := os.WriteFile(outPath, []byte(Banner+script), 0o644); err != nil {
		return fmt.Errorf("cannot write %s: %w", filepath.Base(outPath), err)
	}
	return nil
}

func dedupe(s []string) []string {
	seen := make(map[string]bool, len(s))
	out := s[:0]
	for _, v := range s {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
