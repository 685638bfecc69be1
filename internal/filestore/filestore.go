// Package filestore manages the markdown file hierarchy under <home>/smriti/:
// per-session turn logs, the four preservation streams, consolidated
// day-files, and the budget split across streams. Identity file search
// (SOUL.md etc.) lives in internal/identity, which walks a different
// directory hierarchy.
package filestore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"smriti/internal/tokenizer"
	"smriti/internal/types"
)

// FileStore owns the markdown hierarchy rooted at Root (conventionally
// <home>/smriti).
type FileStore struct {
	Root string
	tok  tokenizer.Tokenizer
}

// New returns a FileStore rooted at root, using tok to compute stream
// token counts. A nil tok defaults to tokenizer.Fallback.
func New(root string, tok tokenizer.Tokenizer) *FileStore {
	if tok == nil {
		tok = tokenizer.NewFallback()
	}
	return &FileStore{Root: root, tok: tok}
}

func (fs *FileStore) sessionsDir() string { return filepath.Join(fs.Root, "sessions") }
func (fs *FileStore) streamsDir() string  { return filepath.Join(fs.Root, "streams") }
func (fs *FileStore) dayDir() string      { return filepath.Join(fs.Root, "day") }

// SessionPath returns the path a session's turn log is (or will be) written to.
func (fs *FileStore) SessionPath(sessionID string) string {
	return filepath.Join(fs.sessionsDir(), sessionID+".md")
}

// WriteSession renders a session's turns as a markdown log and writes it to
// sessions/{id}.md, creating the directory if needed.
func (fs *FileStore) WriteSession(session *types.Session, turns []*types.Turn) error {
	if err := os.MkdirAll(fs.sessionsDir(), 0750); err != nil {
		return fmt.Errorf("filestore: failed to create sessions dir: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", session.Title)
	fmt.Fprintf(&b, "- project: %s\n", session.Project)
	fmt.Fprintf(&b, "- agent: %s\n", session.Agent)
	fmt.Fprintf(&b, "- created: %s\n\n", session.CreatedAt.Format(time.RFC3339))

	for _, t := range turns {
		fmt.Fprintf(&b, "## Turn %d (%s)\n\n%s\n\n", t.TurnNumber, t.Role, t.Content)
		for _, tc := range t.ToolCalls {
			status := "ok"
			if tc.IsError {
				status = "error"
			}
			fmt.Fprintf(&b, "> tool: %s (%s)\n", tc.Name, status)
		}
		if len(t.ToolCalls) > 0 {
			b.WriteString("\n")
		}
	}

	path := fs.SessionPath(session.ID)
	if err := os.WriteFile(path, []byte(b.String()), 0640); err != nil {
		return fmt.Errorf("filestore: failed to write session file: %w", err)
	}
	return nil
}

// ReadSession returns the raw markdown content of a session's log.
func (fs *FileStore) ReadSession(sessionID string) (string, error) {
	data, err := os.ReadFile(fs.SessionPath(sessionID))
	if err != nil {
		return "", fmt.Errorf("filestore: failed to read session file: %w", err)
	}
	return string(data), nil
}

// DayPath returns the path of a consolidated day-file for date (YYYY-MM-DD).
func (fs *FileStore) DayPath(date string) string {
	return filepath.Join(fs.dayDir(), date+".md")
}

// WriteDay writes a consolidated day-file, creating the directory if needed.
func (fs *FileStore) WriteDay(date, content string) error {
	if err := os.MkdirAll(fs.dayDir(), 0750); err != nil {
		return fmt.Errorf("filestore: failed to create day dir: %w", err)
	}
	if err := os.WriteFile(fs.DayPath(date), []byte(content), 0640); err != nil {
		return fmt.Errorf("filestore: failed to write day file: %w", err)
	}
	return nil
}

// ReadDay returns the raw content of a day-file.
func (fs *FileStore) ReadDay(date string) (string, error) {
	data, err := os.ReadFile(fs.DayPath(date))
	if err != nil {
		return "", fmt.Errorf("filestore: failed to read day file: %w", err)
	}
	return string(data), nil
}

// ListDays returns the dates (YYYY-MM-DD) of every consolidated day-file
// present, sorted ascending. A missing day directory yields an empty list,
// not an error.
func (fs *FileStore) ListDays() ([]string, error) {
	entries, err := os.ReadDir(fs.dayDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: failed to list day files: %w", err)
	}

	var dates []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		dates = append(dates, strings.TrimSuffix(e.Name(), ".md"))
	}
	sort.Strings(dates)
	return dates, nil
}

// StreamPath returns the path of a preservation stream file.
func (fs *FileStore) StreamPath(kind types.StreamKind) string {
	return filepath.Join(fs.streamsDir(), string(kind)+".md")
}

// WriteStream writes a preservation stream's body along with a trailing
// "## Meta" footer recording last_updated and the body's token count.
func (fs *FileStore) WriteStream(kind types.StreamKind, title, body string) error {
	if err := os.MkdirAll(fs.streamsDir(), 0750); err != nil {
		return fmt.Errorf("filestore: failed to create streams dir: %w", err)
	}

	tokenCount := fs.tok.Tokens(body)
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n\n", title, strings.TrimRight(body, "\n"))
	b.WriteString("## Meta\n\n")
	fmt.Fprintf(&b, "- last_updated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- token_count: %d\n", tokenCount)

	if err := os.WriteFile(fs.StreamPath(kind), []byte(b.String()), 0640); err != nil {
		return fmt.Errorf("filestore: failed to write stream file: %w", err)
	}
	return nil
}

// StreamMeta is the parsed trailing "## Meta" footer of a stream file.
type StreamMeta struct {
	LastUpdated time.Time
	TokenCount  int
}

// ReadStream returns a stream's body (Meta footer stripped) and parsed Meta.
func (fs *FileStore) ReadStream(kind types.StreamKind) (body string, meta StreamMeta, err error) {
	data, readErr := os.ReadFile(fs.StreamPath(kind))
	if readErr != nil {
		return "", StreamMeta{}, fmt.Errorf("filestore: failed to read stream file: %w", readErr)
	}

	content := string(data)
	idx := strings.Index(content, "## Meta")
	if idx == -1 {
		return strings.TrimSpace(content), StreamMeta{}, nil
	}

	body = strings.TrimSpace(content[:idx])
	footer := content[idx:]
	for _, line := range strings.Split(footer, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		switch {
		case strings.HasPrefix(line, "last_updated:"):
			if t, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(strings.TrimPrefix(line, "last_updated:"))); parseErr == nil {
				meta.LastUpdated = t
			}
		case strings.HasPrefix(line, "token_count:"):
			if n, parseErr := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "token_count:"))); parseErr == nil {
				meta.TokenCount = n
			}
		}
	}
	return body, meta, nil
}

// AllocateStreamBudget splits total proportionally to each stream's
// PreservationRatio, with any integer-rounding remainder assigned to
// StreamIdentity. The returned budgets always sum to exactly total.
func AllocateStreamBudget(total int) map[types.StreamKind]int {
	budgets := make(map[types.StreamKind]int, len(types.AllStreamKinds))
	if total <= 0 {
		for _, k := range types.AllStreamKinds {
			budgets[k] = 0
		}
		return budgets
	}

	var ratioSum float64
	for _, k := range types.AllStreamKinds {
		ratioSum += k.PreservationRatio()
	}

	var allocated int
	for _, k := range types.AllStreamKinds {
		// The small epsilon keeps a share that is exact in decimal (e.g. 700
		// of 2750) from truncating one below because of float error.
		share := int(float64(total)*k.PreservationRatio()/ratioSum + 1e-9)
		budgets[k] = share
		allocated += share
	}
	budgets[types.StreamIdentity] += total - allocated
	return budgets
}
