package tracker

import (
	"path/filepath"
	"strings"
)

// Matches reports whether the root-relative path (slash-separated) matches any
// ignore pattern. Supported pattern forms:
//
//	exact relative path        "docs/readme.md"
//	directory prefix           "vendor/"
//	extension suffix           "*.log"
//	bare directory name        "node_modules"
func ignored(relPath string, patterns []string) bool {
	rel := filepath.ToSlash(relPath)
	segments := strings.Split(rel, "/")
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		switch {
		case strings.HasPrefix(p, "*."):
			if strings.HasSuffix(rel, p[1:]) {
				return true
			}
		case strings.HasSuffix(p, "/"):
			if strings.HasPrefix(rel, p) || rel == strings.TrimSuffix(p, "/") {
				return true
			}
		case rel == p:
			return true
		default:
			// Bare name: match any path segment so "node_modules" ignores the
			// directory at any depth.
			for _, seg := range segments {
				if seg == p {
					return true
				}
			}
		}
	}
	return false
}

// extensionAllowed reports whether ext (with or without leading dot) is in the
// allow-list. An empty list allows every extension.
func extensionAllowed(ext string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	norm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == norm {
			return true
		}
	}
	return false
}
