package game

import "context"

// Store is the durable persistence collaborator. internal/database implements
// it against Postgres; tests use an in-memory fake.
type Store interface {
	// CreateRound persists a new round and fills its ID.
	CreateRound(ctx context.Context, round *Round) error
	// SaveBet inserts the bet when ID is zero (filling it) and updates the
	// existing row otherwise.
	SaveBet(ctx context.Context, bet *Bet) error
	// PendingBets returns all bets still flagged current and pending,
	// ordered by descending amount. Used for crash recovery and
	// round-to-round carry-forward.
	PendingBets(ctx context.Context) ([]*Bet, error)
	// GetUserByName returns the user or ErrUserNotFound.
	GetUserByName(ctx context.Context, name string) (*User, error)
	// AdjustBalance applies a signed delta to the user's balance, serialized
	// per user, clamped at zero, and returns the new balance.
	AdjustBalance(ctx context.Context, userID string, delta float64) (float64, error)
}

// Mirror receives best-effort copies of live state for reconnect catch-up and
// history queries. internal/cache implements it on Redis. Calls must never
// block the game loop; implementations get a short-deadline context.
type Mirror interface {
	PublishState(ctx context.Context, state StateSnapshot)
	PushCrash(ctx context.Context, roundID int64, crashPoint float64)
}
