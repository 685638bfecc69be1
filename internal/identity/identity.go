// Package identity loads the identity/values context assembled into a
// recall prompt (spec.md §4.11): SOUL.md, IDENTITY.md, PERSONALITY.md,
// USER.md, and AGENTS.md, searched across a fixed directory hierarchy and
// cached until explicitly cleared.
package identity

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileSpec pairs a searched filename with the subheading its content is
// assembled under.
type fileSpec struct {
	name    string
	heading string
}

var fileSpecs = []fileSpec{
	{"SOUL.md", "Soul"},
	{"IDENTITY.md", "Identity"},
	{"PERSONALITY.md", "Personality & Voice"},
	{"USER.md", "User Profile"},
	{"AGENTS.md", "Agent Behavior"},
}

// Config controls where Loader searches and how much of each file it keeps.
type Config struct {
	// ConfigPath is an explicit directory to search first. Empty skips this step.
	ConfigPath string
	// ProjectRoot is searched after ConfigPath, then up to MaxParents ancestors of it.
	ProjectRoot string
	// HomeDir is searched last.
	HomeDir string
	// MaxParents bounds how many ancestor directories of ProjectRoot are searched.
	MaxParents int
	// MaxCharsPerFile truncates each file's body after frontmatter/heading stripping.
	MaxCharsPerFile int
}

// DefaultConfig returns spec.md §4.11's named defaults.
func DefaultConfig() Config {
	return Config{MaxParents: 3, MaxCharsPerFile: 3000}
}

// Loader assembles the "## Identity & Values" section and caches it until
// ClearCache is called. The zero value is not usable; construct with New.
type Loader struct {
	cfg Config

	mu         sync.Mutex
	loaded     bool
	section    string
	foundPaths []string
}

// New builds a Loader over cfg.
func New(cfg Config) *Loader {
	return &Loader{cfg: cfg}
}

// Load returns the assembled "## Identity & Values" markdown section, or
// the empty string if no identity files were found anywhere in the search
// hierarchy. The result is cached after the first call.
func (l *Loader) Load() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.section
	}
	l.section, l.foundPaths = l.load()
	l.loaded = true
	return l.section
}

// ClearCache discards the cached section, forcing the next Load to
// re-search the filesystem.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = false
	l.section = ""
	l.foundPaths = nil
}

// HasIdentityFiles reports whether the last Load (triggering one if not
// yet loaded) found at least one identity file.
func (l *Loader) HasIdentityFiles() bool {
	return len(l.GetFoundPaths()) > 0
}

// GetFoundPaths returns the paths of every identity file the last Load
// (triggering one if not yet loaded) found, in search order.
func (l *Loader) GetFoundPaths() []string {
	l.Load()
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.foundPaths))
	copy(out, l.foundPaths)
	return out
}

func (l *Loader) load() (string, []string) {
	dirs := l.searchDirs()

	var sections []string
	var found []string
	for _, spec := range fileSpecs {
		path, ok := findInDirs(dirs, spec.name)
		if !ok {
			continue
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		body := prepareBody(string(raw), l.cfg.MaxCharsPerFile)
		if body == "" {
			continue
		}
		sections = append(sections, "### "+spec.heading+"\n\n"+body)
		found = append(found, path)
	}

	if len(sections) == 0 {
		return "", nil
	}
	return "## Identity & Values\n\n" + strings.Join(sections, "\n\n"), found
}

// searchDirs returns the ordered, deduplicated directory hierarchy: the
// explicit config path, the project root, up to MaxParents ancestors of
// the project root, then the home directory.
func (l *Loader) searchDirs() []string {
	var dirs []string
	seen := make(map[string]bool)
	add := func(d string) {
		if d == "" {
			return
		}
		d = filepath.Clean(d)
		if seen[d] {
			return
		}
		seen[d] = true
		dirs = append(dirs, d)
	}

	add(l.cfg.ConfigPath)
	add(l.cfg.ProjectRoot)

	if l.cfg.ProjectRoot != "" {
		dir := filepath.Clean(l.cfg.ProjectRoot)
		for i := 0; i < l.cfg.MaxParents; i++ {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			add(parent)
			dir = parent
		}
	}

	add(l.cfg.HomeDir)
	return dirs
}

// findInDirs searches dirs in order for a file matching name
// case-insensitively, returning the first match.
func findInDirs(dirs []string, name string) (string, bool) {
	lowerWant := strings.ToLower(name)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.ToLower(e.Name()) == lowerWant {
				return filepath.Join(dir, e.Name()), true
			}
		}
	}
	return "", false
}

// prepareBody strips a leading YAML frontmatter block and a single
// top-level heading, then truncates to maxChars runes.
func prepareBody(raw string, maxChars int) string {
	body := stripFrontmatter(raw)
	body = stripTopHeading(body)
	body = strings.TrimSpace(body)
	if maxChars > 0 {
		runes := []rune(body)
		if len(runes) > maxChars {
			body = string(runes[:maxChars])
		}
	}
	return body
}

// stripFrontmatter removes a "---\n...\n---\n" block from the start of
// raw, if one parses as valid YAML. An unparsable or absent block is left
// untouched rather than stripped.
func stripFrontmatter(raw string) string {
	const delim = "---"
	trimmed := strings.TrimLeft(raw, "﻿ \t\r\n")
	if !strings.HasPrefix(trimmed, delim) {
		return raw
	}
	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return raw
	}
	block := rest[:idx]
	var discard map[string]interface{}
	if err := yaml.Unmarshal([]byte(block), &discard); err != nil {
		return raw
	}
	after := rest[idx+len("\n"+delim):]
	if nl := strings.Index(after, "\n"); nl >= 0 {
		return after[nl+1:]
	}
	return ""
}

// stripTopHeading removes a single leading "# ..." line, if the body's
// first non-blank line is a top-level heading.
func stripTopHeading(body string) string {
	lines := strings.SplitN(body, "\n", 2)
	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "# ") && first != "#" {
		return body
	}
	if len(lines) == 1 {
		return ""
	}
	return lines[1]
}
