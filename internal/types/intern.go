package types

import "sync"

// StringInterner deduplicates frequently repeated strings such as tool names
// and pattern-type tags, which Vasana and Svapna hash into cluster keys on
// every observation.
type StringInterner struct {
	mu      sync.RWMutex
	strings map[string]string // canonical string -> itself
}

var (
	toolNameInterner    = NewStringInterner()
	patternTypeInterner = NewStringInterner()
)

// NewStringInterner creates a new string interner.
func NewStringInterner() *StringInterner {
	return &StringInterner{
		strings: make(map[string]string, 100),
	}
}

// Intern returns the canonical instance of the string, adding it to the pool
// the first time it is seen.
func (si *StringInterner) Intern(s string) string {
	if s == "" {
		return ""
	}

	si.mu.RLock()
	if canonical, exists := si.strings[s]; exists {
		si.mu.RUnlock()
		return canonical
	}
	si.mu.RUnlock()

	si.mu.Lock()
	defer si.mu.Unlock()

	if canonical, exists := si.strings[s]; exists {
		return canonical
	}
	si.strings[s] = s
	return s
}

// InternToolName interns a tool name string.
func InternToolName(toolName string) string {
	return toolNameInterner.Intern(toolName)
}

// InternPatternType interns a pattern-type string.
func InternPatternType(patternType string) string {
	return patternTypeInterner.Intern(patternType)
}

// Size returns the number of interned strings.
func (si *StringInterner) Size() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.strings)
}

// Clear removes all interned strings (used by tests).
func (si *StringInterner) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.strings = make(map[string]string, 100)
}
