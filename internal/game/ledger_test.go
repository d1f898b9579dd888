package game

import (
	"errors"
	"testing"
)

func TestLedger_InsertOrdering(t *testing.T) {
	tests := []struct {
		name    string
		amounts []float64
		wantIDs []int64
	}{
		{
			name:    "descending input stays put",
			amounts: []float64{300, 200, 100},
			wantIDs: []int64{1, 2, 3},
		},
		{
			name:    "ascending input reversed",
			amounts: []float64{100, 200, 300},
			wantIDs: []int64{3, 2, 1},
		},
		{
			name:    "mixed input sorted by amount",
			amounts: []float64{200, 300, 100, 250},
			wantIDs: []int64{2, 4, 1, 3},
		},
		{
			name:    "equal amounts keep insertion order",
			amounts: []float64{100, 100, 100},
			wantIDs: []int64{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			for i, amount := range tt.amounts {
				l.Insert(&Bet{ID: int64(i + 1), UserID: string(rune('a' + i)), Amount: amount})
			}

			got := l.Drain()
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("ledger has %d bets, want %d", len(got), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if got[i].ID != want {
					t.Errorf("position %d: bet ID %d, want %d", i, got[i].ID, want)
				}
			}
		})
	}
}

func TestLedger_TieBrokenByInsertionOrder(t *testing.T) {
	// Two bets of amount 100 placed A then B: ledger order is [A, B].
	l := NewLedger()
	l.Insert(&Bet{ID: 1, UserID: "A", Amount: 100})
	l.Insert(&Bet{ID: 2, UserID: "B", Amount: 100})

	snap := l.Snapshot()
	if snap[0].BetID != 1 || snap[1].BetID != 2 {
		t.Errorf("tie order = [%d, %d], want [1, 2]", snap[0].BetID, snap[1].BetID)
	}
}

func TestLedger_InsertIdempotent(t *testing.T) {
	l := NewLedger()
	bet := &Bet{ID: 7, Username: "alice", Amount: 50}

	l.Insert(bet)
	l.Insert(bet)
	l.Insert(&Bet{ID: 7, Username: "alice", Amount: 50})

	if l.Len() != 1 {
		t.Errorf("ledger length = %d after duplicate inserts, want 1", l.Len())
	}
}

func TestLedger_MarkCashout(t *testing.T) {
	l := NewLedger()
	l.Insert(&Bet{ID: 1, Username: "alice", Amount: 100})

	bet, err := l.MarkCashout("alice", 2.5)
	if err != nil {
		t.Fatalf("MarkCashout() error = %v", err)
	}
	if bet.CashoutAt != 2.5 {
		t.Errorf("CashoutAt = %v, want 2.5", bet.CashoutAt)
	}
	if bet.Result != ResultWin {
		t.Errorf("Result = %v, want tentative win", bet.Result)
	}

	// Set at most once.
	if _, err := l.MarkCashout("alice", 3.0); !errors.Is(err, ErrAlreadyCashedOut) {
		t.Errorf("second MarkCashout() error = %v, want ErrAlreadyCashedOut", err)
	}
	if bet.CashoutAt != 2.5 {
		t.Errorf("CashoutAt overwritten to %v", bet.CashoutAt)
	}
}

func TestLedger_MarkCashout_NoActiveBet(t *testing.T) {
	l := NewLedger()
	if _, err := l.MarkCashout("ghost", 2.0); !errors.Is(err, ErrNoActiveBet) {
		t.Errorf("MarkCashout() error = %v, want ErrNoActiveBet", err)
	}
}

func TestLedger_MarkCashout_UpdatesInPlace(t *testing.T) {
	// The update must land on the held bet, keyed by identity, and show up
	// in the next snapshot.
	l := NewLedger()
	l.Insert(&Bet{ID: 1, Username: "alice", Amount: 100})
	l.Insert(&Bet{ID: 2, Username: "bob", Amount: 200})

	if _, err := l.MarkCashout("alice", 1.8); err != nil {
		t.Fatalf("MarkCashout() error = %v", err)
	}

	found := false
	for _, e := range l.Snapshot() {
		if e.BetID == 1 {
			found = true
			if e.CashoutAt != 1.8 {
				t.Errorf("snapshot entry for bet 1 has CashoutAt %v, want 1.8", e.CashoutAt)
			}
		}
	}
	if !found {
		t.Fatal("bet 1 missing from snapshot")
	}
	if l.Len() != 2 {
		t.Errorf("ledger length = %d after cashout, want 2", l.Len())
	}
}

func TestLedger_Drain(t *testing.T) {
	l := NewLedger()
	l.Insert(&Bet{ID: 1, UserID: "a", Amount: 10})
	l.Insert(&Bet{ID: 2, UserID: "b", Amount: 20})

	drained := l.Drain()
	if len(drained) != 2 {
		t.Fatalf("Drain() returned %d bets, want 2", len(drained))
	}
	if l.Len() != 0 {
		t.Errorf("ledger length = %d after drain, want 0", l.Len())
	}
	if got := l.Drain(); len(got) != 0 {
		t.Errorf("second Drain() returned %d bets, want 0", len(got))
	}
}

func TestLedger_Snapshot_Projection(t *testing.T) {
	l := NewLedger()
	l.Insert(&Bet{ID: 1, UserID: "u1", Username: "alice", Amount: 100, CashoutAt: 1.5})

	snap := l.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot has %d entries, want 1", len(snap))
	}
	e := snap[0]
	if e.BetID != 1 || e.Username != "alice" || e.Amount != 100 || e.CashoutAt != 1.5 {
		t.Errorf("snapshot entry = %+v", e)
	}

	// Mutating the snapshot must not touch the ledger.
	snap[0].Amount = 0
	if l.Snapshot()[0].Amount != 100 {
		t.Error("snapshot mutation leaked into the ledger")
	}
}

func TestLedger_AssignRound(t *testing.T) {
	l := NewLedger()
	l.Insert(&Bet{ID: 1, UserID: "a", Amount: 10})
	l.Insert(&Bet{ID: 2, UserID: "b", Amount: 20, RoundID: 5})

	l.AssignRound(9)

	bets := l.Drain()
	for _, b := range bets {
		switch b.ID {
		case 1:
			if b.RoundID != 9 {
				t.Errorf("bet 1 round = %d, want 9", b.RoundID)
			}
		case 2:
			if b.RoundID != 5 {
				t.Errorf("bet 2 round overwritten to %d", b.RoundID)
			}
		}
	}
}

func TestLedger_Remove(t *testing.T) {
	l := NewLedger()
	l.Insert(&Bet{ID: 1, Username: "a", Amount: 10})
	l.Insert(&Bet{ID: 2, Username: "b", Amount: 20})

	bet := l.Remove("a")
	if bet == nil || bet.ID != 1 {
		t.Fatalf("Remove() = %+v, want bet 1", bet)
	}
	if l.Len() != 1 {
		t.Errorf("ledger length = %d after remove, want 1", l.Len())
	}
	if l.Remove("a") != nil {
		t.Error("second Remove() found a bet")
	}
}

func BenchmarkLedger_Insert(b *testing.B) {
	l := NewLedger()
	for i := 0; i < b.N; i++ {
		l.Insert(&Bet{ID: int64(i), UserID: "u", Amount: float64(i % 500)})
	}
}
