package fixer

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var errFound = errors.New("found")

// Resolve maps a failure's file onto the working tree. A path that does not
// exist under root falls back to the first file with the same base name in
// lexical walk order. It returns "" when nothing matches.
func Resolve(root, file string) string {
	if file == "" {
		return ""
	}
	if p := within(root, file); p != "" && isFile(p) {
		return p
	}

	base := filepath.Base(filepath.FromSlash(file))
	var match string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == base {
			match = path
			return errFound
		}
		return nil
	})
	return match
}

// within joins file onto root and rejects paths that escape it.
func within(root, file string) string {
	p := filepath.FromSlash(file)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return p
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
