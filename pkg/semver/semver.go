// Package semver sorts extension version directories using real semantic
// version ordering, replacing the original implementation's naive
// lexicographic/LooseVersion string sort.
package semver

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Dir pairs a version-suffixed directory name with its parsed version.
type Dir struct {
	Path    string
	Version *semver.Version
}

// ParseDirs parses a set of sibling extension directory paths named
// "<prefix>-<semver>" and returns those that parse successfully, sorted
// ascending by version. Directories that fail to parse are skipped.
func ParseDirs(paths []string) []Dir {
	dirs := make([]Dir, 0, len(paths))
	for _, p := range paths {
		base := filepath.Base(p)
		idx := strings.LastIndex(base, "-")
		if idx < 0 {
			continue
		}
		v, err := semver.NewVersion(base[idx+1:])
		if err != nil {
			continue
		}
		dirs = append(dirs, Dir{Path: p, Version: v})
	}
	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].Version.LessThan(dirs[j].Version)
	})
	return dirs
}

// Preceding returns the directory whose version is the greatest version
// strictly less than current among dirs, or false if none exists. dirs must
// already be sorted ascending (as returned by ParseDirs).
func Preceding(dirs []Dir, current *semver.Version) (Dir, bool) {
	var best Dir
	found := false
	for _, d := range dirs {
		if d.Version.LessThan(current) {
			best = d
			found = true
		}
	}
	return best, found
}
