package game

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
)

const (
	MinCrashPoint = 1.0
	MaxCrashPoint = 11.0
)

// crashSteps is the number of distinct 4-decimal values in [1.0, 11.0).
const crashSteps = 100000

// NewCrashPoint draws one crash point for a round: uniform over the 4-decimal
// grid in [1.0, 11.0), from the system CSPRNG. Called exactly once per round,
// before the round is revealed to players.
func NewCrashPoint() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(crashSteps))
	if err != nil {
		// crypto/rand only fails if the OS entropy source is broken;
		// an instant crash pays out nothing rather than guessing.
		return MinCrashPoint
	}
	return Round4(MinCrashPoint + float64(n.Int64())/10000.0)
}

// GenerateSeed creates a 32-byte random seed, hex encoded.
func GenerateSeed() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// HashCommitment is the SHA-256 of the seed, broadcast at round start so a
// round can be audited after the seed is revealed.
func HashCommitment(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// NewRound builds an unpersisted round with a fresh crash point and seed.
func NewRound() *Round {
	seed := GenerateSeed()
	return &Round{
		CrashPoint: NewCrashPoint(),
		ServerSeed: seed,
		Commitment: HashCommitment(seed),
	}
}
