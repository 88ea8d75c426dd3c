package tally

import (
	"math/big"
	"testing"
)

func TestRoundTallyAddAndFor(t *testing.T) {
	rt := New()
	rt.Add("alice", big.NewRat(3, 1))
	rt.Add("alice", big.NewRat(1, 1))
	rt.Add("bob", big.NewRat(2, 1))

	if rt.For("alice").Cmp(big.NewRat(4, 1)) != 0 {
		t.Errorf("alice tally = %s, want 4", rt.For("alice").RatString())
	}
	if rt.For("nobody").Sign() != 0 {
		t.Errorf("nobody tally should be zero")
	}
}

func TestRoundTallyTotal(t *testing.T) {
	rt := New()
	rt.Add("alice", big.NewRat(3, 1))
	rt.Exhausted = big.NewRat(1, 1)
	rt.Overvote = big.NewRat(1, 2)
	rt.Skipped = big.NewRat(1, 2)

	if rt.Total().Cmp(big.NewRat(5, 1)) != 0 {
		t.Errorf("Total() = %s, want 5", rt.Total().RatString())
	}
}

func TestCanonicalLessOrdersByPermutationThenLexicographic(t *testing.T) {
	less := CanonicalLess([]string{"carol", "alice"})

	if less("carol", "alice") >= 0 {
		t.Error("carol should sort before alice under the given permutation")
	}
	if less("alice", "carol") <= 0 {
		t.Error("alice should sort after carol under the given permutation")
	}
	// bob is absent from the permutation: it sorts after every present
	// candidate, then lexicographically against other absent candidates.
	if less("bob", "alice") <= 0 {
		t.Error("an absent candidate should sort after a present one")
	}
	if less("bob", "dave") >= 0 {
		t.Error("two absent candidates should fall back to lexicographic order")
	}
}

func TestBuildIndexGroupsEqualTalliesIntoOneBucket(t *testing.T) {
	rt := New()
	rt.Add("alice", big.NewRat(10, 1))
	rt.Add("bob", big.NewRat(10, 1))
	rt.Add("carol", big.NewRat(5, 1))

	order := CanonicalOrder(nil, []string{"alice", "bob", "carol"})
	idx := BuildIndex(rt, order, true)

	buckets := idx.Buckets()
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if len(buckets[0].Candidates) != 2 {
		t.Errorf("top bucket should hold both tied candidates, got %v", buckets[0].Candidates)
	}
	if buckets[0].Tally.Cmp(big.NewRat(10, 1)) != 0 {
		t.Errorf("top bucket tally = %s, want 10", buckets[0].Tally.RatString())
	}
	if buckets[1].Candidates[0] != "carol" {
		t.Errorf("second bucket should hold carol, got %v", buckets[1].Candidates)
	}
}

func TestBuildIndexAscendingOrder(t *testing.T) {
	rt := New()
	rt.Add("alice", big.NewRat(10, 1))
	rt.Add("carol", big.NewRat(5, 1))

	idx := BuildIndex(rt, []string{"alice", "carol"}, false)
	top := idx.TopCandidates()
	if len(top) != 1 || top[0] != "carol" {
		t.Errorf("ascending TopCandidates() = %v, want [carol]", top)
	}
}

func TestCanonicalOrderPrefersPermutation(t *testing.T) {
	perm := []string{"z", "a"}
	if got := CanonicalOrder(perm, []string{"a", "z"}); got[0] != "z" || got[1] != "a" {
		t.Errorf("CanonicalOrder should return the permutation unchanged, got %v", got)
	}

	got := CanonicalOrder(nil, []string{"z", "a"})
	if got[0] != "a" || got[1] != "z" {
		t.Errorf("CanonicalOrder with no permutation should sort lexicographically, got %v", got)
	}
}
