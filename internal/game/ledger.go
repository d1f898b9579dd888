package game

import "sync"

// Ledger holds the active bets for the current round, ordered by descending
// stake with insertion order breaking ties. The Manager's loop is the only
// writer; the mutex keeps Snapshot safe for readers outside the loop.
type Ledger struct {
	mu   sync.Mutex
	bets []*Bet
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Insert adds a bet preserving descending-amount order. A bet whose ID is
// already present is ignored, which makes recovery and carry-forward reloads
// idempotent.
func (l *Ledger) Insert(bet *Bet) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bets {
		if b.ID == bet.ID {
			return
		}
	}

	pos := len(l.bets)
	for i, b := range l.bets {
		if b.Amount < bet.Amount {
			pos = i
			break
		}
	}
	l.bets = append(l.bets, nil)
	copy(l.bets[pos+1:], l.bets[pos:])
	l.bets[pos] = bet
}

// ActiveBet returns the user's not-yet-cashed-out bet, or nil. One active bet
// per user per round; a multi-bet extension would key this by bet ID instead.
func (l *Ledger) ActiveBet(username string) *Bet {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bets {
		if b.Username == username && b.CashoutAt == 0 {
			return b
		}
	}
	return nil
}

// Has reports whether the user holds any bet in the ledger, cashed out or not.
func (l *Ledger) Has(username string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bets {
		if b.Username == username {
			return true
		}
	}
	return false
}

// MarkCashout sets the cashout multiplier on the user's active bet, in place,
// keyed by identity. The multiplier is set at most once.
func (l *Ledger) MarkCashout(username string, multiplier float64) (*Bet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var found *Bet
	for _, b := range l.bets {
		if b.Username == username {
			found = b
			break
		}
	}
	if found == nil {
		return nil, ErrNoActiveBet
	}
	if found.CashoutAt != 0 {
		return nil, ErrAlreadyCashedOut
	}

	found.CashoutAt = Round4(multiplier)
	found.Result = ResultWin // tentative, confirmed at settlement
	return found, nil
}

// AssignRound stamps the round identity on every held bet. A bet belongs to
// exactly one round once that round starts.
func (l *Ledger) AssignRound(roundID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, b := range l.bets {
		if b.RoundID == 0 {
			b.RoundID = roundID
		}
	}
}

// Remove takes the user's bet out of the ledger and returns it, or nil.
func (l *Ledger) Remove(username string) *Bet {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, b := range l.bets {
		if b.Username == username {
			l.bets = append(l.bets[:i], l.bets[i+1:]...)
			return b
		}
	}
	return nil
}

// Drain returns the full ordered bet set and clears the ledger, atomically
// with respect to Insert and MarkCashout.
func (l *Ledger) Drain() []*Bet {
	l.mu.Lock()
	defer l.mu.Unlock()

	drained := l.bets
	l.bets = nil
	return drained
}

// Snapshot is a read-only projection for broadcast.
func (l *Ledger) Snapshot() []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]LeaderboardEntry, 0, len(l.bets))
	for _, b := range l.bets {
		entries = append(entries, LeaderboardEntry{
			BetID:     b.ID,
			Username:  b.Username,
			Amount:    b.Amount,
			CashoutAt: b.CashoutAt,
		})
	}
	return entries
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.bets)
}
