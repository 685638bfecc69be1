package svapna

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"time"

	"smriti/internal/types"
)

// toolSequence is one session's ordered (tool_name, args) trace, plus the
// success rate over its calls.
type toolSequence struct {
	sessionID   string
	calls       []types.ToolCall
	successRate float64
}

func extractSequences(sessions []*types.Session, turnsBySession map[string][]*types.Turn, minLen int) []toolSequence {
	var out []toolSequence
	for _, s := range sessions {
		var calls []types.ToolCall
		for _, t := range turnsBySession[s.ID] {
			calls = append(calls, t.ToolCalls...)
		}
		if len(calls) < minLen {
			continue
		}
		successes := 0
		for _, c := range calls {
			if !c.IsError {
				successes++
			}
		}
		out = append(out, toolSequence{
			sessionID:   s.ID,
			calls:       calls,
			successRate: float64(successes) / float64(len(calls)),
		})
	}
	return out
}

func toolNameTuple(calls []types.ToolCall) string {
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	return strings.Join(names, "\x1f")
}

// groupSequences groups successful-enough sequences by their ordered
// tool-name tuple, keeping only groups spanning at least minSessions
// distinct sessions.
func groupSequences(sequences []toolSequence, minSuccessRate float64, minSessions int) map[string][]toolSequence {
	byTuple := make(map[string][]toolSequence)
	for _, seq := range sequences {
		if seq.successRate < minSuccessRate {
			continue
		}
		tuple := toolNameTuple(seq.calls)
		byTuple[tuple] = append(byTuple[tuple], seq)
	}

	groups := make(map[string][]toolSequence)
	for tuple, seqs := range byTuple {
		distinct := make(map[string]bool, len(seqs))
		for _, s := range seqs {
			distinct[s.sessionID] = true
		}
		if len(distinct) >= minSessions {
			groups[tuple] = seqs
		}
	}
	return groups
}

var fileExtPattern = regexp.MustCompile(`\.([A-Za-z0-9]{1,8})(?:["'\s]|$)`)

// antiUnify implements spec.md §4.10.4 steps 4-6 for one tool-name-tuple
// group: build the step template (literal where every sequence agrees,
// "${varK}" where it does not), derive the parameter schema, name, and
// triggers.
func antiUnify(tuple string, sequences []toolSequence, project string) *types.Vidhi {
	if len(sequences) == 0 {
		return nil
	}
	stepCount := len(sequences[0].calls)
	toolNames := strings.Split(tuple, "\x1f")

	steps := make([]types.VidhiStep, stepCount)
	schema := make(map[string]types.ParameterSpec)
	varIndex := 0
	extTokens := make(map[string]bool)

	for stepIdx := 0; stepIdx < stepCount; stepIdx++ {
		template := make(map[string]interface{})

		keys := make(map[string]bool)
		for _, seq := range sequences {
			for k := range seq.calls[stepIdx].Input {
				keys[k] = true
			}
		}
		sortedKeys := make([]string, 0, len(keys))
		for k := range keys {
			sortedKeys = append(sortedKeys, k)
		}
		sort.Strings(sortedKeys)

		for _, key := range sortedKeys {
			presentEverywhere := true
			uniform := true
			var first interface{}
			for i, seq := range sequences {
				v, ok := seq.calls[stepIdx].Input[key]
				if !ok {
					presentEverywhere = false
				}
				if i == 0 {
					first = v
					continue
				}
				if !reflect.DeepEqual(v, first) {
					uniform = false
				}
			}

			if s, ok := first.(string); ok {
				if m := fileExtPattern.FindStringSubmatch(s); m != nil {
					extTokens["."+strings.ToLower(m[1])] = true
				}
			}

			if presentEverywhere && uniform {
				template[key] = first
				continue
			}

			varName := fmt.Sprintf("${var%d}", varIndex)
			varIndex++
			template[key] = varName
			schema[strings.TrimPrefix(strings.TrimSuffix(varName, "}"), "${")] = types.ParameterSpec{
				Type:        "string",
				Required:    presentEverywhere,
				Description: "auto-detected variable",
			}
		}

		steps[stepIdx] = types.VidhiStep{Index: stepIdx, ToolName: toolNames[stepIdx], ArgTemplate: template}
	}

	learnedFrom := make([]string, 0, len(sequences))
	seenSession := make(map[string]bool)
	for _, seq := range sequences {
		if !seenSession[seq.sessionID] {
			seenSession[seq.sessionID] = true
			learnedFrom = append(learnedFrom, seq.sessionID)
		}
	}

	triggers := make([]string, 0, 2*len(toolNames)+len(extTokens))
	for i := 0; i < len(toolNames)-1; i++ {
		triggers = append(triggers, fmt.Sprintf("%s then %s", toolNames[i], toolNames[i+1]))
		triggers = append(triggers, fmt.Sprintf("%s and %s", toolNames[i], toolNames[i+1]))
	}
	extKeys := make([]string, 0, len(extTokens))
	for ext := range extTokens {
		extKeys = append(extKeys, ext)
	}
	sort.Strings(extKeys)
	triggers = append(triggers, extKeys...)

	now := time.Now()
	return &types.Vidhi{
		Name:            slugifySequenceName(toolNames),
		Steps:           steps,
		Triggers:        triggers,
		ParameterSchema: schema,
		Confidence:      meanSuccessRate(sequences),
		LearnedFrom:     learnedFrom,
		Project:         project,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func meanSuccessRate(sequences []toolSequence) float64 {
	var sum float64
	for _, s := range sequences {
		sum += s.successRate
	}
	return sum / float64(len(sequences))
}

var nonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugifySequenceName(toolNames []string) string {
	joined := strings.Join(toolNames, "-then-")
	s := nonSlugPattern.ReplaceAllString(strings.ToLower(joined), "-")
	s = strings.Trim(s, "-")
	const maxLen = 64
	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = "procedure"
	}
	return s
}

// proceduralize implements spec.md §4.10.4 end to end: extract, filter,
// group, anti-unify, and upsert by (ordered tool-name sequence, project) —
// never creating a duplicate row on re-run.
func (e *Engine) proceduralize(project string, sessions []*types.Session, turnsBySession map[string][]*types.Turn, cfg Config) (int, error) {
	if e.vidhis == nil {
		return 0, nil
	}

	sequences := extractSequences(sessions, turnsBySession, cfg.MinSequenceLength)
	groups := groupSequences(sequences, cfg.MinSuccessRate, cfg.MinPatternFrequency)

	created := 0
	for tuple, seqs := range groups {
		candidate := antiUnify(tuple, seqs, project)
		if candidate == nil {
			continue
		}

		seqKey := candidate.ToolSequenceKey()
		existing, err := e.vidhis.GetVidhiBySequence(seqKey, project)
		if err == nil && existing != nil {
			existing.LearnedFrom = mergeLearnedFrom(existing.LearnedFrom, candidate.LearnedFrom)
			existing.UpdatedAt = time.Now()
			if err := e.vidhis.UpsertVidhi(existing); err != nil {
				return created, fmt.Errorf("svapna: failed to update vidhi %q: %w", candidate.Name, err)
			}
			continue
		}

		candidate.ID = fmt.Sprintf("vidhi-%s-%s", project, candidate.Name)
		if err := e.vidhis.UpsertVidhi(candidate); err != nil {
			return created, fmt.Errorf("svapna: failed to create vidhi %q: %w", candidate.Name, err)
		}
		created++
	}
	return created, nil
}

func mergeLearnedFrom(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
