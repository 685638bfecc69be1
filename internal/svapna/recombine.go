package svapna

import (
	"github.com/dominikbraun/graph"

	"smriti/internal/types"
)

// Association is one cross-session match RECOMBINE emits.
type Association struct {
	AnchorSessionID  string
	MatchedSessionID string
	Similarity       float64
}

// toolNameSet is a turn's tool-call fingerprint: the set of distinct tool
// names it invoked.
func toolNameSet(t *types.Turn) map[string]bool {
	if len(t.ToolCalls) == 0 {
		return nil
	}
	set := make(map[string]bool, len(t.ToolCalls))
	for _, tc := range t.ToolCalls {
		set[tc.Name] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for name := range a {
		if b[name] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// recombine implements spec.md §4.10.2. For every high-surprise anchor
// turn with at least one tool call, it finds each other session's
// best-matching turn by Jaccard similarity over tool-name sets (ties
// broken toward the larger fingerprint), keeps matches at similarity >=
// 0.2, and returns every kept (anchor_session, matched_session,
// similarity) sorted by similarity descending. cross_sessions counts the
// distinct unordered session pairs represented, read off the association
// graph's edge count rather than tracked separately.
func recombine(anchors []ScoredTurn, turnsBySession map[string][]*types.Turn, cfg Config) ([]Association, int) {
	g := graph.New(graph.StringHash, graph.Weighted())

	var associations []Association
	for _, anchor := range anchors {
		anchorSet := toolNameSet(anchor.Turn)
		if len(anchorSet) == 0 {
			continue
		}

		for sessionID, turns := range turnsBySession {
			if sessionID == anchor.SessionID {
				continue
			}

			bestSim := -1.0
			bestSize := -1
			found := false
			for _, t := range turns {
				set := toolNameSet(t)
				if len(set) == 0 {
					continue
				}
				sim := jaccard(anchorSet, set)
				if sim > bestSim || (sim == bestSim && len(set) > bestSize) {
					bestSim = sim
					bestSize = len(set)
					found = true
				}
			}
			if !found || bestSim < 0.2 {
				continue
			}

			associations = append(associations, Association{
				AnchorSessionID:  anchor.SessionID,
				MatchedSessionID: sessionID,
				Similarity:       bestSim,
			})
			addAssociationEdge(g, anchor.SessionID, sessionID, bestSim)
		}
	}

	sortAssociationsDesc(associations)

	edges, _ := g.Edges()
	return associations, len(edges)
}

// addAssociationEdge records one session pair in the undirected association
// graph, keeping the stronger of two similarity observations if the pair
// was already recorded from the other anchor direction.
func addAssociationEdge(g graph.Graph[string, string], a, b string, sim float64) {
	_ = g.AddVertex(a)
	_ = g.AddVertex(b)

	weight := int(sim * 1000)
	if err := g.AddEdge(a, b, graph.EdgeWeight(weight)); err != nil {
		if existing, edgeErr := g.Edge(a, b); edgeErr == nil && weight > existing.Properties.Weight {
			_ = g.UpdateEdge(a, b, graph.EdgeWeight(weight))
		}
	}
}

func sortAssociationsDesc(associations []Association) {
	for i := 1; i < len(associations); i++ {
		for j := i; j > 0 && associations[j].Similarity > associations[j-1].Similarity; j-- {
			associations[j], associations[j-1] = associations[j-1], associations[j]
		}
	}
}
