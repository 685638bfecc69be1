// Package vasana implements the Vasana engine (spec.md §4.9): a per-cluster
// Bayesian online change-point detector over observed samskaras, and the
// crystallize/weaken/decay/promote lifecycle that turns stable clusters
// into durable behavioral tendencies.
package vasana

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"smriti/internal/storage"
	"smriti/internal/types"
)

// Config holds the Vasana engine's tunables. Values are this engine's own
// choice where spec.md §4.9 names a knob without a number; see DESIGN.md.
type Config struct {
	Lambda               float64 // geometric prior hazard is 1/Lambda
	WindowSize           int     // bounded feature window, default cap 500
	RunLengthCap         int     // hard per-cluster run-length cap, default 2000
	StabilityWindow      int     // default cap 100
	ChangePointThreshold float64
	AccuracyThreshold    float64
	HoldoutTrainRatio    float64
	DecayHalfLife        time.Duration
	PromotionMinProjects int
}

// DefaultConfig returns the engine's defaults.
func DefaultConfig() Config {
	return Config{
		Lambda:               50,
		WindowSize:           500,
		RunLengthCap:         2000,
		StabilityWindow:      100,
		ChangePointThreshold: 0.6,
		AccuracyThreshold:    0.7,
		HoldoutTrainRatio:    0.7,
		DecayHalfLife:        7 * 24 * time.Hour,
		PromotionMinProjects: 3,
	}
}

// Engine is the Vasana change-point detector plus tendency lifecycle.
type Engine struct {
	cfg       Config
	mu        sync.Mutex
	clusters  map[string]*runLengthState
	samskaras storage.SamskaraRepository
	vasanas   storage.VasanaRepository
	rules     storage.ConsolidationRuleRepository
}

// New builds an Engine. Any repository argument may be nil; the
// corresponding operations then degrade to no-ops / empty results.
func New(cfg Config, samskaras storage.SamskaraRepository, vasanas storage.VasanaRepository, rules storage.ConsolidationRuleRepository) *Engine {
	return &Engine{cfg: cfg, clusters: make(map[string]*runLengthState), samskaras: samskaras, vasanas: vasanas, rules: rules}
}

// normalizeContent implements spec.md §4.9's content normalization:
// lowercase, collapse whitespace, trim.
func normalizeContent(content string) string {
	lower := strings.ToLower(content)
	fields := strings.Fields(lower)
	return strings.Join(fields, " ")
}

// clusterKey is pattern_type || "::" || normalized_content.
func clusterKey(patternType types.PatternType, content string) string {
	return string(patternType) + "::" + normalizeContent(content)
}

// scalarFeature reduces a samskara's feature vector to the single scalar
// BOCPD tracks. pattern_type and normalized_content are held fixed within a
// cluster by construction (they define the cluster key), so only
// confidence and the log-scaled observation count carry change-point
// signal; combined with equal weight.
func scalarFeature(s *types.Samskara) float64 {
	confidence := s.Confidence
	obsFeature := math.Log(1+float64(s.ObservationCount)) / math.Log(101)
	return 0.5*confidence + 0.5*obsFeature
}

// Observe maps a samskara to its cluster's BOCPD state and folds it in.
// Never throws; confidence=0, observation_count=0, and empty content are
// all valid inputs.
func (e *Engine) Observe(s *types.Samskara) {
	if s == nil {
		return
	}
	key := clusterKey(s.PatternType, s.PatternContent)
	x := scalarFeature(s)
	hazard := 1.0 / e.cfg.Lambda

	e.mu.Lock()
	defer e.mu.Unlock()
	cs, ok := e.clusters[key]
	if !ok {
		cs = &runLengthState{}
		e.clusters[key] = cs
	}
	cs.step(x, hazard, e.cfg.RunLengthCap, e.cfg.WindowSize)
}

// nidraRow is the JSON envelope persisted per cluster.
type nidraRow struct {
	Posterior []float64           `json:"posterior"`
	Params    []normalGammaParams `json:"params"`
	Window    []float64           `json:"window"`
}

// Persist serializes every cluster's BOCPD state to its own row via the
// ConsolidationRuleRepository, keyed by cluster key.
func (e *Engine) Persist() error {
	if e.rules == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, cs := range e.clusters {
		row := nidraRow{Posterior: cs.Posterior, Params: cs.Params, Window: cs.Window}
		blob, err := json.Marshal(row)
		if err != nil {
			continue
		}
		if err := e.rules.PutConsolidationRule(key, blob); err != nil {
			return fmt.Errorf("vasana: failed to persist cluster %q: %w", key, err)
		}
	}
	return nil
}

// Restore loads every persisted cluster row. A row that fails to parse is
// silently dropped; the engine continues with fresh state for that
// cluster rather than failing the whole restore.
func (e *Engine) Restore() error {
	if e.rules == nil {
		return nil
	}
	keys, err := e.rules.ListConsolidationRuleKeys()
	if err != nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, key := range keys {
		blob, err := e.rules.GetConsolidationRule(key)
		if err != nil {
			continue
		}
		var row nidraRow
		if err := json.Unmarshal(blob, &row); err != nil {
			continue
		}
		e.clusters[key] = &runLengthState{Posterior: row.Posterior, Params: row.Params, Window: row.Window}
	}
	return nil
}

// CrystallizeResult summarizes one crystallize(project) pass.
type CrystallizeResult struct {
	Created      []string
	Reinforced   []string
	Pending      []string
	ChangePoints []string
	Timestamp    time.Time
}

// slugPattern matches runs of characters unsafe for a kebab-case slug.
var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(content string, maxLen int) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(content), "-")
	s = strings.Trim(s, "-")
	if len(s) > maxLen {
		s = s[:maxLen]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		s = "tendency"
	}
	return s
}

func valenceFor(pt types.PatternType) types.Valence {
	switch pt {
	case types.PatternPreference, types.PatternConvention:
		return types.ValencePositive
	case types.PatternCorrection:
		return types.ValenceNegative
	default:
		return types.ValenceNeutral
	}
}

// reinforce applies spec.md §4.9's diminishing-returns reinforcement law.
func reinforce(v *types.Vasana, observationCount int) {
	v.Strength = math.Min(1.0, v.Strength+(1-v.Strength)*0.2)
	stabilityFromCount := math.Min(1.0, float64(observationCount)/float64(observationCount+10))
	if stabilityFromCount > v.Stability {
		v.Stability = stabilityFromCount
	}
	v.ReinforcementCount++
}

// Crystallize implements spec.md §4.9's crystallize(project).
func (e *Engine) Crystallize(project string) (CrystallizeResult, error) {
	result := CrystallizeResult{Timestamp: time.Now()}
	if e.samskaras == nil || e.vasanas == nil {
		return result, nil
	}

	samskaras, err := e.samskaras.ListSamskaras(project)
	if err != nil {
		return result, fmt.Errorf("vasana: failed to load samskaras: %w", err)
	}

	groups := make(map[string][]*types.Samskara)
	for _, s := range samskaras {
		key := clusterKey(s.PatternType, s.PatternContent)
		groups[key] = append(groups[key], s)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, group := range groups {
		cs := e.clusters[key]

		stabilityOK := cs != nil && len(cs.Posterior) >= e.cfg.StabilityWindow
		crossSessionOK := distinctSessionCount(group) >= 2
		meanConfidence := meanConfidenceOf(group)
		confidenceOK := meanConfidence > 0.5
		holdoutOK := holdoutAccuracyGate(group, e.cfg.HoldoutTrainRatio, e.cfg.AccuracyThreshold)

		if cs != nil && cs.changePointMass() > e.cfg.ChangePointThreshold {
			result.ChangePoints = append(result.ChangePoints, key)
		}

		allPass := stabilityOK && crossSessionOK && confidenceOK && holdoutOK
		anyPass := stabilityOK || crossSessionOK || confidenceOK || holdoutOK

		if !allPass {
			if anyPass {
				result.Pending = append(result.Pending, key)
			}
			continue
		}

		patternType := group[0].PatternType
		normalizedContent := normalizeContent(group[0].PatternContent)
		name := slugify(normalizedContent, 64)
		description := fmt.Sprintf("Observed %s pattern: %s", patternType, normalizedContent)
		valence := valenceFor(patternType)
		sources := sourceIDsOf(group)

		existing, getErr := e.vasanas.GetVasana(name, project)
		if getErr != nil || existing == nil {
			v := &types.Vasana{
				ID:              fmt.Sprintf("vasana-%s-%s", project, name),
				Name:            name,
				Description:     description,
				Valence:         valence,
				Strength:        0.2,
				Stability:       math.Min(1.0, float64(len(group))/float64(len(group)+10)),
				SourceSamskaras: sources,
				Project:         project,
				CreatedAt:       result.Timestamp,
				UpdatedAt:       result.Timestamp,
				LastActivated:   &result.Timestamp,
				ActivationCount: 1,
			}
			if err := e.vasanas.UpsertVasana(v); err != nil {
				return result, fmt.Errorf("vasana: failed to create tendency %q: %w", name, err)
			}
			result.Created = append(result.Created, name)
			continue
		}

		reinforce(existing, len(group))
		existing.LastActivated = &result.Timestamp
		existing.ActivationCount++
		existing.UpdatedAt = result.Timestamp
		existing.SourceSamskaras = mergeUnique(existing.SourceSamskaras, sources)
		if err := e.vasanas.UpsertVasana(existing); err != nil {
			return result, fmt.Errorf("vasana: failed to reinforce tendency %q: %w", name, err)
		}
		result.Reinforced = append(result.Reinforced, name)
	}

	return result, nil
}

func distinctSessionCount(group []*types.Samskara) int {
	seen := make(map[string]bool)
	for _, s := range group {
		seen[s.SessionID] = true
	}
	return len(seen)
}

func meanConfidenceOf(group []*types.Samskara) float64 {
	if len(group) == 0 {
		return 0
	}
	var sum float64
	for _, s := range group {
		sum += s.Confidence
	}
	return sum / float64(len(group))
}

func sourceIDsOf(group []*types.Samskara) []string {
	ids := make([]string, 0, len(group))
	for _, s := range group {
		ids = append(ids, s.ID)
	}
	return ids
}

func mergeUnique(a, b []string) []string {
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

// holdoutAccuracyGate implements spec.md §4.9's holdout accuracy gate: at
// least 4 total observations, train/test split by trainRatio, predict test
// confidence from the train mean, and require accuracy ≥ threshold.
func holdoutAccuracyGate(group []*types.Samskara, trainRatio, threshold float64) bool {
	if len(group) < 4 {
		return false
	}
	ordered := make([]*types.Samskara, len(group))
	copy(ordered, group)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	trainN := int(float64(len(ordered)) * trainRatio)
	if trainN < 1 {
		trainN = 1
	}
	if trainN >= len(ordered) {
		trainN = len(ordered) - 1
	}
	train, test := ordered[:trainN], ordered[trainN:]
	if len(test) == 0 {
		return false
	}

	var trainSum float64
	for _, s := range train {
		trainSum += s.Confidence
	}
	predicted := trainSum / float64(len(train))

	var accuracySum float64
	for _, s := range test {
		accuracySum += 1 - math.Abs(predicted-s.Confidence)
	}
	accuracy := accuracySum / float64(len(test))
	return accuracy >= threshold
}

// Weaken implements spec.md §4.9's weaken(id): strength ← max(0, strength
// − 0.15). No-op on an unknown id.
func (e *Engine) Weaken(id string) error {
	if e.vasanas == nil {
		return nil
	}
	all, err := e.vasanas.ListVasanas("")
	if err != nil {
		return err
	}
	for _, v := range all {
		if v.ID != id {
			continue
		}
		v.Strength = math.Max(0, v.Strength-0.15)
		return e.vasanas.UpsertVasana(v)
	}
	return nil
}

// Decay implements spec.md §4.9's decay(half_life?): exponential strength
// decay since last_activated, deleting rows below 0.01. A surviving row's
// last_activated moves to now, so the next pass decays only over the time
// since this one. Returns the number deleted.
func (e *Engine) Decay(halfLife time.Duration, now time.Time) (int, error) {
	if e.vasanas == nil {
		return 0, nil
	}
	if halfLife <= 0 {
		halfLife = e.cfg.DecayHalfLife
	}

	all, err := e.vasanas.ListVasanas("")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, v := range all {
		lastActivated := now
		if v.LastActivated != nil {
			lastActivated = *v.LastActivated
		}
		delta := now.Sub(lastActivated)
		if delta < 0 {
			delta = 0
		}
		v.Strength *= math.Pow(2, -float64(delta)/float64(halfLife))

		if v.Strength < 0.01 {
			if err := e.vasanas.DeleteVasana(v.ID); err != nil {
				return deleted, err
			}
			deleted++
			continue
		}
		decayedAt := now
		v.LastActivated = &decayedAt
		if err := e.vasanas.UpsertVasana(v); err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

// PromoteToGlobal implements spec.md §4.9's promote_to_global().
func (e *Engine) PromoteToGlobal() ([]string, error) {
	if e.vasanas == nil {
		return nil, nil
	}

	all, err := e.vasanas.ListVasanas("")
	if err != nil {
		return nil, err
	}

	byName := make(map[string][]*types.Vasana)
	for _, v := range all {
		if v.Project == types.GlobalProject {
			continue
		}
		byName[v.Name] = append(byName[v.Name], v)
	}

	var promoted []string
	for name, group := range byName {
		projects := make(map[string]bool)
		for _, v := range group {
			projects[v.Project] = true
		}
		if len(projects) < e.cfg.PromotionMinProjects {
			continue
		}

		var strengthSum, stabilityMax float64
		var sources []string
		valenceVotes := map[types.Valence]int{}
		for _, v := range group {
			strengthSum += v.Strength
			if v.Stability > stabilityMax {
				stabilityMax = v.Stability
			}
			sources = mergeUnique(sources, v.SourceSamskaras)
			valenceVotes[v.Valence]++
		}
		meanStrength := strengthSum / float64(len(group))
		if meanStrength < 0.4 {
			continue
		}

		if existing, getErr := e.vasanas.GetVasana(name, types.GlobalProject); getErr == nil && existing != nil {
			continue
		}

		now := time.Now()
		global := &types.Vasana{
			ID:              fmt.Sprintf("vasana-global-%s", name),
			Name:            name,
			Description:     group[0].Description,
			Valence:         majorityValence(valenceVotes),
			Strength:        meanStrength,
			Stability:       stabilityMax,
			SourceSamskaras: sources,
			Project:         types.GlobalProject,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.vasanas.UpsertVasana(global); err != nil {
			return promoted, fmt.Errorf("vasana: failed to promote %q: %w", name, err)
		}
		promoted = append(promoted, name)
	}
	return promoted, nil
}

// majorityValence breaks ties in favor of neutral, then positive, then
// negative, per spec.md §4.9.
func majorityValence(votes map[types.Valence]int) types.Valence {
	order := []types.Valence{types.ValenceNeutral, types.ValencePositive, types.ValenceNegative}
	best := types.ValenceNeutral
	bestCount := -1
	for _, v := range order {
		if votes[v] > bestCount {
			bestCount = votes[v]
			best = v
		}
	}
	return best
}

// GetVasanas implements spec.md §4.9's get_vasanas(project, top_k?): the
// union of project rows and global rows, sorted strength desc, stability
// desc, tendency asc, truncated to topK (0 means unbounded).
func (e *Engine) GetVasanas(project string, topK int) ([]*types.Vasana, error) {
	if e.vasanas == nil {
		return nil, nil
	}

	projectRows, err := e.vasanas.ListVasanas(project)
	if err != nil {
		return nil, err
	}
	globalRows, err := e.vasanas.ListVasanas(types.GlobalProject)
	if err != nil {
		return nil, err
	}

	all := append(append([]*types.Vasana{}, projectRows...), globalRows...)
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Strength != all[j].Strength {
			return all[i].Strength > all[j].Strength
		}
		if all[i].Stability != all[j].Stability {
			return all[i].Stability > all[j].Stability
		}
		return all[i].Name < all[j].Name
	})

	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	return all, nil
}
