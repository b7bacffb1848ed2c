package battle

import "testing"

func TestDefaultTurnManagerFasterFirst(t *testing.T) {
	fast := mustCombatant(t, makeRecord("Fast", 100, 50, 50, 50, 50, 100), SideA)
	slow := mustCombatant(t, makeRecord("Slow", 100, 50, 50, 50, 50, 50), SideB)

	tm := DefaultTurnManager{}
	if got := tm.FirstActor(fast, slow, &scriptedRNG{}); got.First != SideA || got.Tie {
		t.Errorf("first = %+v, want side_a without tie", got)
	}
	if got := tm.FirstActor(slow, fast, &scriptedRNG{}); got.First != SideB {
		t.Errorf("first = %+v, want side_b", got)
	}
}

func TestDefaultTurnManagerUsesBaseSpeed(t *testing.T) {
	a := mustCombatant(t, makeRecord("A", 100, 50, 50, 50, 50, 60), SideA)
	b := mustCombatant(t, makeRecord("B", 100, 50, 50, 50, 50, 70), SideB)
	a.AddStage(StatSpeed, 6)

	if got := (DefaultTurnManager{}).FirstActor(a, b, &scriptedRNG{}); got.First != SideB {
		t.Errorf("first = %v, want side_b (stages ignored)", got.First)
	}
}

func TestDefaultTurnManagerTieIsCoinFlip(t *testing.T) {
	a := mustCombatant(t, makeRecord("A", 100, 50, 50, 50, 50, 80), SideA)
	b := mustCombatant(t, makeRecord("B", 100, 50, 50, 50, 50, 80), SideB)
	tm := DefaultTurnManager{}

	if got := tm.FirstActor(a, b, &scriptedRNG{ints: []int{0}}); got.First != SideA || !got.Tie {
		t.Errorf("flip 0 = %+v, want side_a tie", got)
	}
	if got := tm.FirstActor(a, b, &scriptedRNG{ints: []int{1}}); got.First != SideB || !got.Tie {
		t.Errorf("flip 1 = %+v, want side_b tie", got)
	}
}

func TestDefaultTurnManagerTieIsUnbiased(t *testing.T) {
	a := mustCombatant(t, makeRecord("A", 100, 50, 50, 50, 50, 80), SideA)
	b := mustCombatant(t, makeRecord("B", 100, 50, 50, 50, 50, 80), SideB)
	rng := NewSeededRNG(42)

	countA := 0
	const n = 2000
	for i := 0; i < n; i++ {
		if (DefaultTurnManager{}).FirstActor(a, b, rng).First == SideA {
			countA++
		}
	}
	if countA < n*4/10 || countA > n*6/10 {
		t.Errorf("side_a first %d/%d times, want roughly half", countA, n)
	}
}

func TestRollRange(t *testing.T) {
	rng := NewSeededRNG(3)
	for i := 0; i < 500; i++ {
		v := rollRange(rng, 2, 5)
		if v < 2 || v > 5 {
			t.Fatalf("rollRange = %d, out of [2,5]", v)
		}
		p := rollPercent(rng)
		if p < 1 || p > 100 {
			t.Fatalf("rollPercent = %d, out of [1,100]", p)
		}
	}
	if rollRange(rng, 4, 4) != 4 {
		t.Error("degenerate range should return lo")
	}
}
