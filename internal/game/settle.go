package game

import (
	"context"
	"log"
	"sync"
	"time"
)

// Settler resolves drained bets against a round's crash point and owns all
// balance credits during SETTLING. Bets whose writes fail land in a retry
// queue; losing a settlement record is the worst failure this system has, so
// queue entries are re-attempted on every flush and logged loudly until they
// stick.
type Settler struct {
	store Store

	mu    sync.Mutex
	retry []*Bet
}

func NewSettler(store Store) *Settler {
	return &Settler{store: store}
}

// Settle resolves every bet in the drained ledger. Outcomes are independent
// across bets: win iff the bet cashed out at or below the crash point, credit
// amount x cashoutAt; the stake was debited at placement so a loss moves no
// money. The realized crash point is recorded on every bet for audit.
func (s *Settler) Settle(ctx context.Context, round *Round, bets []*Bet) {
	for _, bet := range bets {
		bet.RoundID = round.ID
		bet.Crash = round.CrashPoint
		bet.Current = false
		bet.SettledAt = time.Now()

		if bet.CashoutAt > 0 && bet.CashoutAt <= round.CrashPoint {
			bet.Result = ResultWin
		} else {
			bet.Result = ResultLose
		}

		if err := s.settleBet(ctx, bet); err != nil {
			log.Printf("[SETTLE] FAILED to record bet %d (user %s, %s): %v - queued for retry",
				bet.ID, bet.Username, bet.Result, err)
			s.enqueue(bet)
		}
	}
}

func (s *Settler) settleBet(ctx context.Context, bet *Bet) error {
	if bet.Result == ResultWin && !bet.credited {
		payout := Round4(bet.Amount * bet.CashoutAt)
		if _, err := s.store.AdjustBalance(ctx, bet.UserID, payout); err != nil {
			return err
		}
		// Credit applied exactly once even if the row write below fails
		// and the bet comes back through the retry queue.
		bet.credited = true
	}
	return s.store.SaveBet(ctx, bet)
}

func (s *Settler) enqueue(bet *Bet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = append(s.retry, bet)
}

// Flush re-attempts every queued settlement write. Bets that still fail stay
// queued for the next flush.
func (s *Settler) Flush(ctx context.Context) {
	s.mu.Lock()
	pending := s.retry
	s.retry = nil
	s.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	var failed []*Bet
	for _, bet := range pending {
		if err := s.settleBet(ctx, bet); err != nil {
			log.Printf("[SETTLE] retry failed for bet %d: %v", bet.ID, err)
			failed = append(failed, bet)
		} else {
			log.Printf("[SETTLE] retry succeeded for bet %d", bet.ID)
		}
	}

	if len(failed) > 0 {
		s.mu.Lock()
		s.retry = append(failed, s.retry...)
		s.mu.Unlock()
	}
}

// PendingRetries reports how many settlement writes are still outstanding.
func (s *Settler) PendingRetries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retry)
}

// PendingIDs reports which bet IDs are held for a settlement retry. A bet in
// the queue was already resolved (and a win already credited); its database
// row just hasn't caught up. The ledger reload paths skip these IDs so a
// stale pending row cannot re-enter play and be settled twice.
func (s *Settler) PendingIDs() map[int64]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.retry) == 0 {
		return nil
	}
	ids := make(map[int64]bool, len(s.retry))
	for _, b := range s.retry {
		ids[b.ID] = true
	}
	return ids
}
