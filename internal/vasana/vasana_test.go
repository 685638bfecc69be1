package vasana

import (
	"math"
	"testing"
	"time"

	"smriti/internal/storage"
	"smriti/internal/types"
)

func almostEqual(a, b, eps float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func TestBOCPDPosteriorSumsToOne(t *testing.T) {
	cs := &runLengthState{}
	hazard := 1.0 / 50
	for i := 0; i < 30; i++ {
		x := 0.3 + 0.01*float64(i%3)
		cs.step(x, hazard, 2000, 500)
		if !almostEqual(sum(cs.Posterior), 1.0, 1e-9) {
			t.Fatalf("step %d: posterior sums to %v, want 1.0", i, sum(cs.Posterior))
		}
	}
}

func TestBOCPDDetectsChangePoint(t *testing.T) {
	cs := &runLengthState{}
	hazard := 1.0 / 50
	for i := 0; i < 50; i++ {
		cs.step(0.2, hazard, 2000, 500)
	}
	stableMass := cs.changePointMass()

	for i := 0; i < 5; i++ {
		cs.step(5.0, hazard, 2000, 500)
	}
	shiftedMass := cs.changePointMass()

	if shiftedMass <= stableMass {
		t.Errorf("changePointMass after a large shift (%v) should exceed the stable baseline (%v)", shiftedMass, stableMass)
	}
}

func TestScalarFeatureCombinesConfidenceAndObservationCount(t *testing.T) {
	low := scalarFeature(&types.Samskara{Confidence: 0, ObservationCount: 0})
	high := scalarFeature(&types.Samskara{Confidence: 1, ObservationCount: 100})
	if !(low < high) {
		t.Errorf("scalarFeature(low) = %v, scalarFeature(high) = %v, want low < high", low, high)
	}
}

func TestClusterKeyCombinesTypeAndNormalizedContent(t *testing.T) {
	k1 := clusterKey(types.PatternPreference, "  Use   Tabs  ")
	k2 := clusterKey(types.PatternPreference, "use tabs")
	if k1 != k2 {
		t.Errorf("clusterKey() = %q and %q, want equal after normalization", k1, k2)
	}
	k3 := clusterKey(types.PatternConvention, "use tabs")
	if k1 == k3 {
		t.Errorf("clusterKey() collided across distinct pattern types: %q", k1)
	}
}

// Seed scenario 3 (spec.md §8): strength=0.5, last_activated = now-2h.
// Expected strength' = 0.125. After another 3h (cumulative 5h): strength''
// ~= 0.015625. A further 2h drops below 0.01 and the row is deleted.
func TestDecaySeedScenarioThree(t *testing.T) {
	halfLife := time.Hour
	now := time.Now()
	activated := now.Add(-2 * halfLife)

	mem := storage.NewMemoryStore()
	v := &types.Vasana{ID: "v1", Name: "tabs", Project: "proj", Strength: 0.5, LastActivated: &activated}
	if err := mem.UpsertVasana(v); err != nil {
		t.Fatalf("UpsertVasana() error: %v", err)
	}

	e := New(DefaultConfig(), nil, mem, nil)

	deleted, err := e.Decay(halfLife, now)
	if err != nil {
		t.Fatalf("Decay() error: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("Decay() deleted %d rows, want 0", deleted)
	}
	got, _ := mem.GetVasana("tabs", "proj")
	if !almostEqual(got.Strength, 0.125, 1e-9) {
		t.Errorf("strength after first decay = %v, want 0.125", got.Strength)
	}

	now2 := now.Add(3 * halfLife)
	deleted, err = e.Decay(halfLife, now2)
	if err != nil {
		t.Fatalf("Decay() error: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("Decay() deleted %d rows, want 0", deleted)
	}
	got, _ = mem.GetVasana("tabs", "proj")
	want := 0.5 * math.Pow(2, -5)
	if !almostEqual(got.Strength, want, 1e-6) {
		t.Errorf("strength after cumulative 5h decay = %v, want %v", got.Strength, want)
	}

	now3 := now2.Add(2 * halfLife)
	deleted, err = e.Decay(halfLife, now3)
	if err != nil {
		t.Fatalf("Decay() error: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("Decay() deleted %d rows, want 1 (strength dropped below 0.01)", deleted)
	}
	if _, err := mem.GetVasana("tabs", "proj"); err == nil {
		t.Error("expected GetVasana() to error after deletion")
	}
}

func TestDecayTreatsNilLastActivatedAsNow(t *testing.T) {
	now := time.Now()
	mem := storage.NewMemoryStore()
	v := &types.Vasana{ID: "v1", Name: "tabs", Project: "proj", Strength: 0.5, LastActivated: nil}
	if err := mem.UpsertVasana(v); err != nil {
		t.Fatalf("UpsertVasana() error: %v", err)
	}

	e := New(DefaultConfig(), nil, mem, nil)
	if _, err := e.Decay(time.Hour, now); err != nil {
		t.Fatalf("Decay() error: %v", err)
	}
	got, _ := mem.GetVasana("tabs", "proj")
	if !almostEqual(got.Strength, 0.5, 1e-9) {
		t.Errorf("strength = %v, want unchanged 0.5 (zero elapsed time)", got.Strength)
	}
}

func TestReinforceIsMonotoneNonDecreasing(t *testing.T) {
	v := &types.Vasana{Strength: 0}
	prev := v.Strength
	for i := 1; i <= 50; i++ {
		reinforce(v, i)
		if v.Strength < prev {
			t.Fatalf("reinforce() strength decreased: %v -> %v", prev, v.Strength)
		}
		if v.Strength > 1.0 {
			t.Fatalf("reinforce() strength exceeded 1.0: %v", v.Strength)
		}
		prev = v.Strength
	}
	if prev < 0.99 {
		t.Errorf("after 50 reinforcements strength = %v, want close to 1.0", prev)
	}
}

func TestWeaken(t *testing.T) {
	mem := storage.NewMemoryStore()
	v := &types.Vasana{ID: "v1", Name: "tabs", Project: "proj", Strength: 0.5}
	if err := mem.UpsertVasana(v); err != nil {
		t.Fatalf("UpsertVasana() error: %v", err)
	}

	e := New(DefaultConfig(), nil, mem, nil)
	if err := e.Weaken("v1"); err != nil {
		t.Fatalf("Weaken() error: %v", err)
	}
	got, _ := mem.GetVasana("tabs", "proj")
	if !almostEqual(got.Strength, 0.35, 1e-9) {
		t.Errorf("strength after Weaken() = %v, want 0.35", got.Strength)
	}

	if err := e.Weaken("does-not-exist"); err != nil {
		t.Errorf("Weaken() on unknown id returned error: %v", err)
	}
}

func TestPersistAndRestoreRoundTrip(t *testing.T) {
	mem := storage.NewMemoryStore()
	e1 := New(DefaultConfig(), nil, nil, mem)

	s := &types.Samskara{PatternType: types.PatternPreference, PatternContent: "use tabs", Confidence: 0.6, ObservationCount: 3}
	for i := 0; i < 10; i++ {
		e1.Observe(s)
	}
	if err := e1.Persist(); err != nil {
		t.Fatalf("Persist() error: %v", err)
	}

	e2 := New(DefaultConfig(), nil, nil, mem)
	if err := e2.Restore(); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}

	key := clusterKey(s.PatternType, s.PatternContent)
	cs1 := e1.clusters[key]
	cs2 := e2.clusters[key]
	if cs2 == nil {
		t.Fatal("Restore() did not recover the persisted cluster")
	}
	if len(cs1.Posterior) != len(cs2.Posterior) {
		t.Fatalf("restored posterior length = %d, want %d", len(cs2.Posterior), len(cs1.Posterior))
	}
	for i := range cs1.Posterior {
		if !almostEqual(cs1.Posterior[i], cs2.Posterior[i], 1e-9) {
			t.Errorf("restored posterior[%d] = %v, want %v", i, cs2.Posterior[i], cs1.Posterior[i])
		}
	}
}

func TestRestoreSilentlyDropsUnparsableRow(t *testing.T) {
	mem := storage.NewMemoryStore()
	if err := mem.PutConsolidationRule("preference::broken", []byte("not json")); err != nil {
		t.Fatalf("PutConsolidationRule() error: %v", err)
	}

	e := New(DefaultConfig(), nil, nil, mem)
	if err := e.Restore(); err != nil {
		t.Fatalf("Restore() error: %v", err)
	}
	if _, ok := e.clusters["preference::broken"]; ok {
		t.Error("Restore() should not have installed a cluster for an unparsable row")
	}
}

func makeSamskara(project, session string, created time.Time, confidence float64, obsCount int) *types.Samskara {
	return &types.Samskara{
		ID:               session + "-" + created.Format(time.RFC3339Nano),
		SessionID:        session,
		PatternType:      types.PatternPreference,
		PatternContent:   "use tabs for indentation",
		ObservationCount: obsCount,
		Confidence:       confidence,
		Project:          project,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestCrystallizeCreatesWhenAllGatesPass(t *testing.T) {
	mem := storage.NewMemoryStore()
	base := time.Now().Add(-24 * time.Hour)

	for i := 0; i < 6; i++ {
		session := "session-a"
		if i%2 == 0 {
			session = "session-b"
		}
		s := makeSamskara("proj", session, base.Add(time.Duration(i)*time.Minute), 0.8, 5)
		if err := mem.UpsertSamskara(s); err != nil {
			t.Fatalf("UpsertSamskara() error: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.StabilityWindow = 1
	e := New(cfg, mem, mem, nil)

	for i := 0; i < 6; i++ {
		e.Observe(makeSamskara("proj", "x", base, 0.8, 5))
	}

	result, err := e.Crystallize("proj")
	if err != nil {
		t.Fatalf("Crystallize() error: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("Crystallize() created %d tendencies, want 1 (got pending=%v)", len(result.Created), result.Pending)
	}

	v, err := mem.GetVasana(result.Created[0], "proj")
	if err != nil {
		t.Fatalf("GetVasana() error: %v", err)
	}
	if v.Valence != types.ValencePositive {
		t.Errorf("Valence = %v, want positive (preference pattern)", v.Valence)
	}
}

func TestCrystallizeLeavesWeakClusterPending(t *testing.T) {
	mem := storage.NewMemoryStore()
	base := time.Now()
	s := makeSamskara("proj", "session-a", base, 0.1, 0)
	if err := mem.UpsertSamskara(s); err != nil {
		t.Fatalf("UpsertSamskara() error: %v", err)
	}

	e := New(DefaultConfig(), mem, mem, nil)
	result, err := e.Crystallize("proj")
	if err != nil {
		t.Fatalf("Crystallize() error: %v", err)
	}
	if len(result.Created) != 0 {
		t.Errorf("Crystallize() created %v, want none (single low-confidence observation)", result.Created)
	}
}

func TestCrystallizeReinforcesExistingTendency(t *testing.T) {
	mem := storage.NewMemoryStore()
	base := time.Now().Add(-24 * time.Hour)
	for i := 0; i < 6; i++ {
		session := "session-a"
		if i%2 == 0 {
			session = "session-b"
		}
		s := makeSamskara("proj", session, base.Add(time.Duration(i)*time.Minute), 0.8, 5)
		if err := mem.UpsertSamskara(s); err != nil {
			t.Fatalf("UpsertSamskara() error: %v", err)
		}
	}

	cfg := DefaultConfig()
	cfg.StabilityWindow = 1
	e := New(cfg, mem, mem, nil)
	for i := 0; i < 6; i++ {
		e.Observe(makeSamskara("proj", "x", base, 0.8, 5))
	}

	first, err := e.Crystallize("proj")
	if err != nil || len(first.Created) != 1 {
		t.Fatalf("first Crystallize() = %+v, err %v", first, err)
	}
	name := first.Created[0]
	before, _ := mem.GetVasana(name, "proj")

	second, err := e.Crystallize("proj")
	if err != nil {
		t.Fatalf("second Crystallize() error: %v", err)
	}
	if len(second.Reinforced) != 1 || second.Reinforced[0] != name {
		t.Fatalf("second Crystallize() reinforced = %v, want [%s]", second.Reinforced, name)
	}
	after, _ := mem.GetVasana(name, "proj")
	if after.Strength < before.Strength {
		t.Errorf("reinforced strength %v should be >= previous %v", after.Strength, before.Strength)
	}
}

func TestPromoteToGlobalRequiresMinProjectsAndMeanStrength(t *testing.T) {
	mem := storage.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.PromotionMinProjects = 3
	e := New(cfg, nil, mem, nil)

	for _, p := range []string{"a", "b"} {
		v := &types.Vasana{ID: "v-" + p, Name: "tabs", Project: p, Strength: 0.9, Valence: types.ValencePositive}
		if err := mem.UpsertVasana(v); err != nil {
			t.Fatalf("UpsertVasana() error: %v", err)
		}
	}
	promoted, err := e.PromoteToGlobal()
	if err != nil {
		t.Fatalf("PromoteToGlobal() error: %v", err)
	}
	if len(promoted) != 0 {
		t.Fatalf("PromoteToGlobal() promoted %v with only 2 projects, want none", promoted)
	}

	v := &types.Vasana{ID: "v-c", Name: "tabs", Project: "c", Strength: 0.9, Valence: types.ValencePositive}
	if err := mem.UpsertVasana(v); err != nil {
		t.Fatalf("UpsertVasana() error: %v", err)
	}
	promoted, err = e.PromoteToGlobal()
	if err != nil {
		t.Fatalf("PromoteToGlobal() error: %v", err)
	}
	if len(promoted) != 1 || promoted[0] != "tabs" {
		t.Fatalf("PromoteToGlobal() = %v, want [tabs]", promoted)
	}

	global, err := mem.GetVasana("tabs", types.GlobalProject)
	if err != nil {
		t.Fatalf("GetVasana(global) error: %v", err)
	}
	if global.Valence != types.ValencePositive {
		t.Errorf("global Valence = %v, want positive", global.Valence)
	}

	promotedAgain, err := e.PromoteToGlobal()
	if err != nil {
		t.Fatalf("second PromoteToGlobal() error: %v", err)
	}
	if len(promotedAgain) != 0 {
		t.Errorf("PromoteToGlobal() re-promoted %v, want none (already global)", promotedAgain)
	}
}

func TestGetVasanasUnionsProjectAndGlobalSortedAndTruncated(t *testing.T) {
	mem := storage.NewMemoryStore()
	rows := []*types.Vasana{
		{ID: "p1", Name: "alpha", Project: "proj", Strength: 0.3},
		{ID: "p2", Name: "beta", Project: "proj", Strength: 0.9},
		{ID: "g1", Name: "gamma", Project: types.GlobalProject, Strength: 0.9, Stability: 0.9},
	}
	for _, v := range rows {
		if err := mem.UpsertVasana(v); err != nil {
			t.Fatalf("UpsertVasana() error: %v", err)
		}
	}

	e := New(DefaultConfig(), nil, mem, nil)
	got, err := e.GetVasanas("proj", 0)
	if err != nil {
		t.Fatalf("GetVasanas() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetVasanas() returned %d rows, want 3 (union of project+global)", len(got))
	}
	if got[0].Name != "gamma" || got[1].Name != "beta" {
		t.Errorf("GetVasanas() order = [%s %s %s], want [gamma beta alpha] (strength desc, stability tiebreak)", got[0].Name, got[1].Name, got[2].Name)
	}

	truncated, err := e.GetVasanas("proj", 1)
	if err != nil {
		t.Fatalf("GetVasanas() error: %v", err)
	}
	if len(truncated) != 1 {
		t.Fatalf("GetVasanas(topK=1) returned %d rows, want 1", len(truncated))
	}
}

func TestHoldoutAccuracyGateRequiresMinimumFour(t *testing.T) {
	group := []*types.Samskara{
		makeSamskara("p", "s1", time.Now(), 0.8, 1),
		makeSamskara("p", "s2", time.Now(), 0.8, 1),
		makeSamskara("p", "s3", time.Now(), 0.8, 1),
	}
	if holdoutAccuracyGate(group, 0.7, 0.7) {
		t.Error("holdoutAccuracyGate() passed with only 3 observations, want false")
	}
}
