package game

import (
	"math"
	"time"
)

type Phase string

const (
	PhaseBetting  Phase = "BETTING"
	PhaseRunning  Phase = "RUNNING"
	PhaseSettling Phase = "SETTLING"
)

const (
	ResultPending = "pending"
	ResultWin     = "win"
	ResultLose    = "lose"
)

// Round is one play cycle. CrashPoint is fixed at creation and never mutated.
type Round struct {
	ID         int64     `json:"round_id"`
	CrashPoint float64   `json:"crash_point"`
	ServerSeed string    `json:"-"`
	Commitment string    `json:"commitment"`
	CreatedAt  time.Time `json:"created_at"`
}

// Bet is a single wager. CashoutAt is zero until the player cashes out and is
// set at most once. Result moves from pending to win/lose exactly once.
type Bet struct {
	ID        int64     `json:"bet_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	RoundID   int64     `json:"round_id,omitempty"`
	Amount    float64   `json:"amount"`
	CashoutAt float64   `json:"cashout_at,omitempty"`
	Crash     float64   `json:"crash,omitempty"`
	Result    string    `json:"result"`
	Current   bool      `json:"-"`
	SocketID  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	SettledAt time.Time `json:"settled_at,omitempty"`

	credited bool // balance credit already applied, guards settlement retries
}

type User struct {
	UUID    string
	Name    string
	Balance float64
}

type BetRequest struct {
	Username     string           `json:"username"`
	Amount       float64          `json:"amount"`
	SocketID     string           `json:"-"`
	ResponseChan chan BetResponse `json:"-"`
}

type BetResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	BetID   int64   `json:"bet_id,omitempty"`
	Balance float64 `json:"balance,omitempty"`
}

type CashoutRequest struct {
	Username     string               `json:"username"`
	Multiplier   float64              `json:"multiplier"`
	ResponseChan chan CashoutResponse `json:"-"`
}

type CashoutResponse struct {
	Success    bool    `json:"success"`
	Message    string  `json:"message"`
	Multiplier float64 `json:"multiplier,omitempty"`
	BetID      int64   `json:"bet_id,omitempty"`
}

// LeaderboardEntry is the read-only projection of an active bet for broadcast.
type LeaderboardEntry struct {
	BetID     int64   `json:"bet_id"`
	Username  string  `json:"username"`
	Amount    float64 `json:"amount"`
	CashoutAt float64 `json:"cashout_at,omitempty"`
}

// StateSnapshot is what a reconnecting client needs to catch up mid-round.
type StateSnapshot struct {
	Phase       Phase              `json:"phase"`
	RoundID     int64              `json:"round_id,omitempty"`
	Multiplier  float64            `json:"multiplier"`
	Countdown   float64            `json:"countdown,omitempty"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

// Round4 rounds to 4 decimal digits. Every multiplier, crash point, and payout
// passes through this before comparison or storage so the crash boundary never
// flaps on floating-point noise.
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
