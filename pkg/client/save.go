package client

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// UniqueName returns name, or the first "<stem>-N<rest>" variant that does
// not exist yet, where the stem ends at the first '.'. A name without a dot
// gets the suffix appended.
//
//	report.txt     -> report-1.txt
//	archive.tar.gz -> archive-1.tar.gz
//
// An error from exists stops the search and is returned.
func UniqueName(exists func(string) (bool, error), name string) (string, error) {
	stem, rest := name, ""
	if i := strings.IndexByte(name, '.'); i >= 0 {
		stem, rest = name[:i], name[i:]
	}

	candidate := name
	for n := 1; ; n++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = stem + "-" + strconv.Itoa(n) + rest
	}
}

// SaveFile writes data to fs under the base of name, renaming to avoid
// overwriting an existing file. It returns the name used.
func SaveFile(fs afero.Fs, name string, data []byte) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	target, err := UniqueName(func(candidate string) (bool, error) {
		return afero.Exists(fs, candidate)
	}, base)
	if err != nil {
		return "", fmt.Errorf("check %s: %w", base, err)
	}

	if err := afero.WriteFile(fs, target, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", target, err)
	}
	return target, nil
}
