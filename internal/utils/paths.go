package utils

import "path/filepath"

// ResolvePaths rewrites each relative path in place so that it is rooted at
// baseDir. Absolute and empty paths are left unchanged.
func ResolvePaths(baseDir string, paths ...*string) {
	for _, p := range paths {
		if p == nil || *p == "" || filepath.IsAbs(*p) {
			continue
		}
		*p = filepath.Join(baseDir, *p)
	}
}
