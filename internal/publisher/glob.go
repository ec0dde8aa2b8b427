package publisher

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Match returns the workspace-relative, slash separated paths of the regular
// files under root that match pattern. A "**" segment matches any number of
// directories, every other segment uses path.Match syntax.
func Match(root, pattern string) ([]string, error) {
	patternParts := strings.Split(path.Clean(filepath.ToSlash(pattern)), "/")

	var matches []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := matchParts(patternParts, strings.Split(rel, "/"))
		if err != nil {
			return err
		}
		if ok {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func matchParts(pattern, name []string) (bool, error) {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			for i := 0; i <= len(name); i++ {
				ok, err := matchParts(rest, name[i:])
				if err != nil || ok {
					return ok, err
				}
			}
			return false, nil
		}
		if len(name) == 0 {
			return false, nil
		}
		ok, err := path.Match(pattern[0], name[0])
		if err != nil || !ok {
			return false, err
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0, nil
}

// MatchPath reports whether a slash separated relative path matches pattern
// using the same rules as Match.
func MatchPath(pattern, rel string) (bool, error) {
	return matchParts(
		strings.Split(path.Clean(filepath.ToSlash(pattern)), "/"),
		strings.Split(path.Clean(rel), "/"),
	)
}
