package svapna

import (
	"math"
	"sort"

	"smriti/internal/types"
)

// ScoredTurn is one turn carrying its REPLAY surprise score.
type ScoredTurn struct {
	SessionID       string
	Turn            *types.Turn
	Surprise        float64
	RetentionWeight float64
	HighSurprise    bool
}

func patternKey(tc types.ToolCall) string {
	if tc.IsError {
		return tc.Name + "|error"
	}
	return tc.Name + "|ok"
}

// replay implements spec.md §4.10.1: score every loaded turn for surprise,
// normalize to [0,1] against the max observed, derive retention_weight and
// the high_surprise subset.
func replay(sessions []*types.Session, turnsBySession map[string][]*types.Turn, cfg Config) ([]ScoredTurn, []ScoredTurn) {
	patternFreq := make(map[string]int)
	totalPatterns := 0
	for _, s := range sessions {
		for _, t := range turnsBySession[s.ID] {
			for _, tc := range t.ToolCalls {
				patternFreq[patternKey(tc)]++
				totalPatterns++
			}
		}
	}

	sessionMeanLen := make(map[string]float64, len(sessions))
	for _, s := range sessions {
		turns := turnsBySession[s.ID]
		if len(turns) == 0 {
			continue
		}
		var sum int
		for _, t := range turns {
			sum += len(t.Content)
		}
		sessionMeanLen[s.ID] = float64(sum) / float64(len(turns))
	}

	var raw []ScoredTurn
	for _, s := range sessions {
		for _, t := range turnsBySession[s.ID] {
			st := ScoredTurn{SessionID: s.ID, Turn: t}
			if len(t.ToolCalls) > 0 {
				st.Surprise = toolCallSurprise(t, patternFreq, totalPatterns)
			} else {
				st.Surprise = contentLengthSurprise(t, sessionMeanLen[s.ID])
			}
			raw = append(raw, st)
		}
	}

	maxSurprise := 0.0
	for _, st := range raw {
		if st.Surprise > maxSurprise {
			maxSurprise = st.Surprise
		}
	}

	scored := make([]ScoredTurn, len(raw))
	var highSurprise []ScoredTurn
	for i, st := range raw {
		if maxSurprise > 0 {
			st.Surprise /= maxSurprise
		} else {
			st.Surprise = 0
		}
		st.RetentionWeight = 0.5 + 0.5*st.Surprise
		st.HighSurprise = st.Surprise >= cfg.SurpriseThreshold
		scored[i] = st
		if st.HighSurprise {
			highSurprise = append(highSurprise, st)
		}
	}

	sort.SliceStable(highSurprise, func(i, j int) bool { return highSurprise[i].Surprise > highSurprise[j].Surprise })
	return scored, highSurprise
}

// toolCallSurprise rises for tool-call patterns that are rare corpus-wide
// and for errored calls.
func toolCallSurprise(t *types.Turn, patternFreq map[string]int, totalPatterns int) float64 {
	if totalPatterns == 0 || len(t.ToolCalls) == 0 {
		return 0
	}
	var sum float64
	for _, tc := range t.ToolCalls {
		freq := patternFreq[patternKey(tc)]
		rarity := -math.Log(float64(freq) / float64(totalPatterns))
		if tc.IsError {
			rarity += 1.0
		}
		sum += rarity
	}
	return sum / float64(len(t.ToolCalls))
}

// contentLengthSurprise rises with how far a turn's length deviates from
// its session's mean turn length.
func contentLengthSurprise(t *types.Turn, meanLen float64) float64 {
	if meanLen == 0 {
		return 0
	}
	dev := float64(len(t.Content)) - meanLen
	if dev < 0 {
		dev = -dev
	}
	return dev / meanLen
}
