package game

import (
	"math"
	"testing"
)

func TestNewCrashPoint_Bounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		got := NewCrashPoint()
		if got < MinCrashPoint || got >= MaxCrashPoint {
			t.Fatalf("NewCrashPoint() = %v, want in [%v, %v)", got, MinCrashPoint, MaxCrashPoint)
		}
	}
}

func TestNewCrashPoint_FourDecimalPrecision(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := NewCrashPoint()
		scaled := got * 10000
		if math.Abs(scaled-math.Round(scaled)) > 1e-9 {
			t.Errorf("NewCrashPoint() = %v, not on the 4-decimal grid", got)
		}
	}
}

func TestNewCrashPoint_Varies(t *testing.T) {
	seen := make(map[float64]bool)
	for i := 0; i < 100; i++ {
		seen[NewCrashPoint()] = true
	}
	// 100 draws over 100k values landing on fewer than 3 distinct points
	// means the randomness source is broken.
	if len(seen) < 3 {
		t.Errorf("NewCrashPoint() produced only %d distinct values in 100 draws", len(seen))
	}
}

func TestGenerateSeed(t *testing.T) {
	seed1 := GenerateSeed()
	seed2 := GenerateSeed()

	if seed1 == seed2 {
		t.Error("GenerateSeed() produced duplicate seeds")
	}
	if len(seed1) != 64 { // 32 bytes = 64 hex characters
		t.Errorf("GenerateSeed() length = %v, want 64", len(seed1))
	}
}

func TestHashCommitment(t *testing.T) {
	seed := "test_seed_12345"

	hash1 := HashCommitment(seed)
	hash2 := HashCommitment(seed)

	if hash1 != hash2 {
		t.Error("HashCommitment() is not deterministic")
	}
	if len(hash1) != 64 { // SHA256 = 64 hex characters
		t.Errorf("HashCommitment() length = %v, want 64", len(hash1))
	}
}

func TestNewRound(t *testing.T) {
	round := NewRound()

	if round.CrashPoint < MinCrashPoint || round.CrashPoint >= MaxCrashPoint {
		t.Errorf("round crash point %v out of range", round.CrashPoint)
	}
	if round.Commitment != HashCommitment(round.ServerSeed) {
		t.Error("round commitment does not match its seed")
	}
}

func BenchmarkNewCrashPoint(b *testing.B) {
	for i := 0; i < b.N; i++ {
		NewCrashPoint()
	}
}
