package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", name, err)
	}
}

func TestLoadNoFilesReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{ProjectRoot: dir, MaxParents: 3, MaxCharsPerFile: 3000})

	if got := l.Load(); got != "" {
		t.Errorf("Load() = %q, want empty", got)
	}
	if l.HasIdentityFiles() {
		t.Error("HasIdentityFiles() = true, want false")
	}
	if paths := l.GetFoundPaths(); len(paths) != 0 {
		t.Errorf("GetFoundPaths() = %v, want empty", paths)
	}
}

func TestLoadAssemblesSectionsInFixedOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "AGENTS.md", "# Agents\n\nBehave well.")
	writeFile(t, dir, "SOUL.md", "# Soul\n\nBe kind.")

	l := New(Config{ProjectRoot: dir, MaxParents: 3, MaxCharsPerFile: 3000})
	got := l.Load()

	soulIdx := indexOf(got, "### Soul")
	agentsIdx := indexOf(got, "### Agent Behavior")
	if soulIdx < 0 || agentsIdx < 0 {
		t.Fatalf("Load() missing expected subheadings: %q", got)
	}
	if soulIdx > agentsIdx {
		t.Errorf("Soul section (at %d) should precede Agent Behavior (at %d) regardless of file write order", soulIdx, agentsIdx)
	}
	if indexOf(got, "## Identity & Values") != 0 {
		t.Errorf("Load() does not start with the assembled heading: %q", got)
	}
	if indexOf(got, "Be kind.") < 0 {
		t.Errorf("Load() dropped SOUL.md body: %q", got)
	}
	if indexOf(got, "# Soul") >= 0 {
		t.Errorf("Load() did not strip the top-level heading: %q", got)
	}

	if !l.HasIdentityFiles() {
		t.Error("HasIdentityFiles() = false, want true")
	}
	if paths := l.GetFoundPaths(); len(paths) != 2 {
		t.Errorf("GetFoundPaths() = %v, want 2 entries", paths)
	}
}

func TestLoadIsCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "soul.md", "hello from soul")

	l := New(Config{ProjectRoot: dir, MaxParents: 3, MaxCharsPerFile: 3000})
	got := l.Load()
	if indexOf(got, "hello from soul") < 0 {
		t.Errorf("Load() did not find lowercase soul.md: %q", got)
	}
}

func TestLoadStripsFrontmatter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "USER.md", "---\nname: Ada\nrole: engineer\n---\n# User\n\nPrefers terse replies.")

	l := New(Config{ProjectRoot: dir, MaxParents: 3, MaxCharsPerFile: 3000})
	got := l.Load()
	if indexOf(got, "name: Ada") >= 0 {
		t.Errorf("Load() did not strip frontmatter: %q", got)
	}
	if indexOf(got, "Prefers terse replies.") < 0 {
		t.Errorf("Load() dropped body after frontmatter: %q", got)
	}
}

func TestLoadTruncatesToMaxCharsPerFile(t *testing.T) {
	dir := t.TempDir()
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	writeFile(t, dir, "IDENTITY.md", string(long))

	l := New(Config{ProjectRoot: dir, MaxParents: 3, MaxCharsPerFile: 100})
	got := l.Load()

	count := 0
	for _, r := range got {
		if r == 'x' {
			count++
		}
	}
	if count != 100 {
		t.Errorf("Load() kept %d x's, want exactly 100", count)
	}
}

func TestLoadPrefersProjectRootOverParent(t *testing.T) {
	parent := t.TempDir()
	project := filepath.Join(parent, "proj")
	if err := os.Mkdir(project, 0755); err != nil {
		t.Fatalf("Mkdir() error: %v", err)
	}
	writeFile(t, parent, "SOUL.md", "parent soul")
	writeFile(t, project, "SOUL.md", "project soul")

	l := New(Config{ProjectRoot: project, MaxParents: 3, MaxCharsPerFile: 3000})
	got := l.Load()
	if indexOf(got, "project soul") < 0 {
		t.Errorf("Load() = %q, want project-root SOUL.md to win", got)
	}
	if indexOf(got, "parent soul") >= 0 {
		t.Errorf("Load() = %q, want parent SOUL.md not used once project root matches", got)
	}
}

func TestClearCacheForcesReload(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{ProjectRoot: dir, MaxParents: 3, MaxCharsPerFile: 3000})

	if got := l.Load(); got != "" {
		t.Fatalf("Load() = %q, want empty before any file exists", got)
	}

	writeFile(t, dir, "SOUL.md", "now it exists")
	if got := l.Load(); got != "" {
		t.Errorf("Load() = %q, want cached empty result before ClearCache", got)
	}

	l.ClearCache()
	if got := l.Load(); indexOf(got, "now it exists") < 0 {
		t.Errorf("Load() after ClearCache = %q, want fresh content", got)
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
