package game

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

type Config struct {
	TickInterval  time.Duration // multiplier clock period
	BettingWindow time.Duration // countdown before each round
	SweepInterval time.Duration // periodic persistence sweep during RUNNING
	MinBet        float64
	MaxBet        float64
	// LoseOnDisconnect resolves a disconnecting user's active bet as a loss.
	// Off by default: a bet rides to settlement like any other.
	LoseOnDisconnect bool
}

func DefaultConfig() Config {
	return Config{
		TickInterval:  50 * time.Millisecond,
		BettingWindow: 7 * time.Second,
		SweepInterval: 5 * time.Second,
		MinBet:        1.0,
		MaxBet:        10000.0,
	}
}

// Manager owns the round lifecycle: BETTING -> RUNNING -> SETTLING -> BETTING.
// A single goroutine (run) is the only writer of round and ledger state; bet
// placement, cashout requests, and crash-tick processing are all serialized
// through it, which is what makes the crash-vs-cashout race deterministic. A
// cashout pulled off the queue before the crash tick settles as a win; one
// still queued when the crash is processed gets a phase rejection.
type Manager struct {
	cfg     Config
	hub     *Hub
	store   Store
	mirror  Mirror
	ledger  *Ledger
	settler *Settler

	betCh        chan BetRequest
	cashoutCh    chan CashoutRequest
	disconnectCh chan string
	stopCh       chan struct{}
	doneCh       chan struct{}
	stopOnce     sync.Once

	stateMu   sync.RWMutex
	phase     Phase
	round     *Round
	mult      float64
	countdown float64

	dirtyMu sync.Mutex
	dirty   map[int64]Bet
	sweepWG sync.WaitGroup

	newRound func() *Round // swapped in tests for a fixed crash point
}

// NewManager wires the engine. mirror may be nil (no Redis).
func NewManager(store Store, hub *Hub, mirror Mirror, cfg Config) *Manager {
	return &Manager{
		cfg:       cfg,
		hub:       hub,
		store:     store,
		mirror:    mirror,
		ledger:    NewLedger(),
		settler:   NewSettler(store),
		betCh:        make(chan BetRequest, 1000),
		cashoutCh:    make(chan CashoutRequest, 1000),
		disconnectCh: make(chan string, 1000),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		phase:     PhaseBetting,
		mult:      1.0,
		dirty:     make(map[int64]Bet),
		newRound:  NewRound,
	}
}

func (m *Manager) Start() {
	go m.run()
}

// Stop shuts the loop down and waits for an in-flight settlement to drain.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// PlaceBet submits a bet to the game loop and waits for its verdict. Valid
// only while the countdown is open; a bet queued during SETTLING is held and
// lands in the next round's ledger.
func (m *Manager) PlaceBet(req BetRequest) BetResponse {
	respChan := make(chan BetResponse, 1)
	req.ResponseChan = respChan

	select {
	case m.betCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(10 * time.Second):
			return BetResponse{Success: false, Message: "bet timeout"}
		}
	default:
		return BetResponse{Success: false, Message: "bet queue full"}
	}
}

// Cashout submits a cashout request to the game loop. Valid only while the
// multiplier is climbing, once per bet.
func (m *Manager) Cashout(req CashoutRequest) CashoutResponse {
	respChan := make(chan CashoutResponse, 1)
	req.ResponseChan = respChan

	select {
	case m.cashoutCh <- req:
		select {
		case resp := <-respChan:
			return resp
		case <-time.After(5 * time.Second):
			return CashoutResponse{Success: false, Message: "cashout timeout"}
		}
	default:
		return CashoutResponse{Success: false, Message: "cashout queue full"}
	}
}

// CurrentState returns a snapshot for reconnecting clients.
func (m *Manager) CurrentState() StateSnapshot {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	snap := StateSnapshot{
		Phase:       m.phase,
		Multiplier:  m.mult,
		Countdown:   m.countdown,
		Leaderboard: m.ledger.Snapshot(),
	}
	if m.round != nil {
		snap.RoundID = m.round.ID
	}
	return snap
}

func (m *Manager) run() {
	defer close(m.doneCh)

	m.recoverPending()

	for {
		select {
		case <-m.stopCh:
			m.teardown()
			return
		default:
		}
		if !m.playRound() {
			m.teardown()
			return
		}
	}
}

// playRound drives one full cycle. Returns false when a stop was requested.
func (m *Manager) playRound() bool {
	m.setPhase(PhaseBetting, nil)
	m.hub.Broadcast(wsMessage("cashout_state", map[string]interface{}{"enabled": false}))
	m.broadcastLeaderboard(false)

	if !m.bettingWindow() {
		return false
	}

	round := m.createRound()
	if round == nil {
		return false
	}

	crashed := m.runMultiplier(round)
	if !crashed {
		return false
	}

	m.settleRound(round)
	m.reloadCarryForward()
	return true
}

// bettingWindow runs the countdown, accepting bets and rejecting cashouts.
func (m *Manager) bettingWindow() bool {
	deadline := time.NewTimer(m.cfg.BettingWindow)
	defer deadline.Stop()
	countdown := time.NewTicker(time.Second)
	defer countdown.Stop()

	end := time.Now().Add(m.cfg.BettingWindow)
	m.setCountdown(m.cfg.BettingWindow.Seconds())
	m.hub.Broadcast(wsMessage("countdown", map[string]interface{}{
		"seconds_remaining": m.cfg.BettingWindow.Seconds(),
	}))

	for {
		select {
		case <-deadline.C:
			m.setCountdown(0)
			return true
		case <-countdown.C:
			left := time.Until(end).Seconds()
			if left < 0 {
				left = 0
			}
			m.setCountdown(left)
			m.hub.Broadcast(wsMessage("countdown", map[string]interface{}{
				"seconds_remaining": float64(int(left + 0.5)),
			}))
		case req := <-m.betCh:
			m.processBet(req)
		case req := <-m.cashoutCh:
			m.rejectCashout(req, ErrPhase)
		case username := <-m.disconnectCh:
			m.dropDisconnected(username)
		case <-m.stopCh:
			return false
		}
	}
}

// createRound generates a crash point once and persists the round before any
// tick is published, retrying the write so a tick never references an
// unidentified round.
func (m *Manager) createRound() *Round {
	round := m.newRound()
	round.CreatedAt = time.Now()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := m.store.CreateRound(ctx, round)
		cancel()
		if err == nil {
			break
		}
		log.Printf("[GAME] failed to persist round: %v - retrying", err)
		select {
		case <-time.After(time.Second):
		case <-m.stopCh:
			return nil
		}
	}

	log.Printf("[GAME] round %d created, crash point %.4fx (hidden), commitment %s...",
		round.ID, round.CrashPoint, round.Commitment[:16])

	// The crash point stays server-side until round_end; only the commitment
	// goes out now.
	m.hub.Broadcast(wsMessage("round_start", map[string]interface{}{
		"round_id":   round.ID,
		"commitment": round.Commitment,
	}))
	return round
}

// runMultiplier drives the 50ms clock until the crash tick. Returns true on
// crash, false when stopped early.
func (m *Manager) runMultiplier(round *Round) bool {
	m.ledger.AssignRound(round.ID)
	m.setPhase(PhaseRunning, round)
	m.hub.Broadcast(wsMessage("cashout_state", map[string]interface{}{"enabled": true}))

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(m.cfg.SweepInterval)
	defer sweep.Stop()

	start := time.Now()
	last := 1.0

	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(start).Seconds()
			mult := MultiplierAt(elapsed)

			if mult >= round.CrashPoint {
				// The crash tick. Processed exactly once; every cashout
				// still queued behind it is rejected in settleRound.
				m.setMultiplier(round.CrashPoint)
				return true
			}
			if mult > last {
				last = mult
				m.setMultiplier(mult)
				m.hub.Broadcast(wsMessage("multiplier_tick", map[string]interface{}{
					"multiplier": mult,
				}))
			}
		case req := <-m.cashoutCh:
			m.processCashout(req, last)
		case req := <-m.betCh:
			m.rejectBet(req, ErrPhase)
		case username := <-m.disconnectCh:
			m.dropDisconnected(username)
		case <-sweep.C:
			m.sweepDirty()
		case <-m.stopCh:
			return false
		}
	}
}

func (m *Manager) settleRound(round *Round) {
	m.setPhase(PhaseSettling, round)
	m.hub.Broadcast(wsMessage("cashout_state", map[string]interface{}{"enabled": false}))
	m.hub.Broadcast(wsMessage("round_end", map[string]interface{}{
		"round_id":    round.ID,
		"crash_point": round.CrashPoint,
		"server_seed": round.ServerSeed,
	}))

	if m.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		m.mirror.PushCrash(ctx, round.ID, round.CrashPoint)
		cancel()
	}

	// Let an in-flight sweep finish so its writes cannot land after the
	// authoritative settlement writes below.
	m.sweepWG.Wait()

	bets := m.ledger.Drain()
	log.Printf("[GAME] round %d crashed at %.4fx, settling %d bets", round.ID, round.CrashPoint, len(bets))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	m.settler.Settle(ctx, round, bets)
	m.settler.Flush(ctx)
	cancel()

	final := make([]LeaderboardEntry, 0, len(bets))
	for _, b := range bets {
		final = append(final, LeaderboardEntry{
			BetID:     b.ID,
			Username:  b.Username,
			Amount:    b.Amount,
			CashoutAt: b.CashoutAt,
		})
	}
	m.hub.Broadcast(wsMessage("leaderboard", map[string]interface{}{
		"entries":  final,
		"is_final": true,
	}))
}

// reloadCarryForward pulls every bet still flagged current and pending into
// the fresh ledger, ordered by descending amount. Insert is idempotent so
// bets already in memory are untouched. Bets whose settlement write is still
// in the retry queue are skipped: they are already resolved, their row is
// just stale, and reloading one would settle (and credit) it again.
func (m *Manager) reloadCarryForward() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bets, err := m.store.PendingBets(ctx)
	if err != nil {
		log.Printf("[GAME] carry-forward reload failed: %v", err)
		return
	}
	held := m.settler.PendingIDs()
	loaded := 0
	for _, b := range bets {
		if held[b.ID] {
			continue
		}
		m.ledger.Insert(b)
		loaded++
	}
	if loaded > 0 {
		log.Printf("[GAME] carried %d pending bets into the next round", loaded)
		m.broadcastLeaderboard(false)
	}
}

// recoverPending reloads bets stranded by a prior process before the first
// betting window opens, so a crash mid-round does not strand money.
func (m *Manager) recoverPending() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bets, err := m.store.PendingBets(ctx)
	if err != nil {
		log.Printf("[GAME] recovery reload failed: %v", err)
		return
	}
	held := m.settler.PendingIDs()
	loaded := 0
	for _, b := range bets {
		if held[b.ID] {
			continue
		}
		m.ledger.Insert(b)
		loaded++
	}
	if loaded > 0 {
		log.Printf("[GAME] recovered %d pending bets from previous run", loaded)
	}
}

func (m *Manager) processBet(req BetRequest) {
	resp := BetResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	amount := Round4(req.Amount)
	if req.Username == "" || amount <= 0 {
		resp.Message = ErrInvalidAmount.Error()
		return
	}
	if amount < m.cfg.MinBet || amount > m.cfg.MaxBet {
		resp.Message = ErrInvalidAmount.Error()
		return
	}
	if m.ledger.Has(req.Username) {
		resp.Message = ErrDuplicateBet.Error()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := m.store.GetUserByName(ctx, req.Username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			resp.Message = ErrUserNotFound.Error()
		} else {
			resp.Message = "temporary failure, try again"
		}
		return
	}
	if user.Balance < amount {
		resp.Message = ErrInsufficientBalance.Error()
		resp.Balance = user.Balance
		return
	}

	// Stake is debited at placement; a loss moves no further money.
	newBalance, err := m.store.AdjustBalance(ctx, user.UUID, -amount)
	if err != nil {
		resp.Message = "temporary failure, try again"
		return
	}

	bet := &Bet{
		UserID:    user.UUID,
		Username:  user.Name,
		Amount:    amount,
		Result:    ResultPending,
		Current:   true,
		SocketID:  req.SocketID,
		CreatedAt: time.Now(),
	}
	if err := m.store.SaveBet(ctx, bet); err != nil {
		// Roll the debit back rather than holding money without a bet row.
		if _, rbErr := m.store.AdjustBalance(ctx, user.UUID, amount); rbErr != nil {
			log.Printf("[GAME] ALERT: debit rollback failed for user %s: %v", user.Name, rbErr)
		}
		resp.Message = "temporary failure, try again"
		return
	}

	m.ledger.Insert(bet)

	resp.Success = true
	resp.BetID = bet.ID
	resp.Balance = newBalance
	resp.Message = "bet placed"

	log.Printf("[GAME] bet %d: %s staked %.2f", bet.ID, user.Name, amount)
	m.broadcastLeaderboard(false)
}

// processCashout runs on the loop during RUNNING only. currentMult is the
// last published tick, so a client can never lock in a value the clock has
// not reached.
func (m *Manager) processCashout(req CashoutRequest, currentMult float64) {
	resp := CashoutResponse{}
	defer func() {
		if req.ResponseChan != nil {
			req.ResponseChan <- resp
		}
	}()

	mult := Round4(req.Multiplier)
	if req.Username == "" || mult <= 1.0 {
		resp.Message = ErrInvalidMultiplier.Error()
		return
	}
	if mult > currentMult {
		resp.Message = ErrMultiplierAhead.Error()
		return
	}

	bet, err := m.ledger.MarkCashout(req.Username, mult)
	if err != nil {
		resp.Message = err.Error()
		return
	}

	m.markDirty(bet)

	resp.Success = true
	resp.Multiplier = bet.CashoutAt
	resp.BetID = bet.ID
	resp.Message = "cashout locked"

	log.Printf("[GAME] %s cashed out bet %d at %.4fx", bet.Username, bet.ID, bet.CashoutAt)
	m.broadcastLeaderboard(false)
}

// HandleDisconnect is called when a user's connection drops. By default the
// bet stays in the ledger and rides to settlement. With LoseOnDisconnect the
// event is queued into the game loop, which pulls the bet and resolves it as
// a loss; ledger mutation stays on the single writer.
func (m *Manager) HandleDisconnect(username string) {
	if !m.cfg.LoseOnDisconnect {
		return
	}
	select {
	case m.disconnectCh <- username:
	default:
		log.Printf("[GAME] disconnect queue full, dropping event for %s", username)
	}
}

// dropDisconnected runs on the loop.
func (m *Manager) dropDisconnected(username string) {
	bet := m.ledger.Remove(username)
	if bet == nil {
		return
	}

	bet.Result = ResultLose
	bet.Current = false
	bet.SettledAt = time.Now()
	log.Printf("[GAME] auto-lost bet %d for disconnected user %s", bet.ID, username)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.store.SaveBet(ctx, bet); err != nil {
			log.Printf("[GAME] failed to record disconnect loss for bet %d: %v", bet.ID, err)
		}
	}()
	m.broadcastLeaderboard(false)
}

func (m *Manager) rejectBet(req BetRequest, err error) {
	if req.ResponseChan != nil {
		req.ResponseChan <- BetResponse{Success: false, Message: err.Error()}
	}
}

func (m *Manager) rejectCashout(req CashoutRequest, err error) {
	if req.ResponseChan != nil {
		req.ResponseChan <- CashoutResponse{Success: false, Message: err.Error()}
	}
}

// markDirty queues a value copy of the bet for the periodic persistence
// sweep. Cashouts are acknowledged from memory; the durable write is
// decoupled from the tick path on purpose.
func (m *Manager) markDirty(bet *Bet) {
	m.dirtyMu.Lock()
	m.dirty[bet.ID] = *bet
	m.dirtyMu.Unlock()
}

func (m *Manager) sweepDirty() {
	m.dirtyMu.Lock()
	if len(m.dirty) == 0 {
		m.dirtyMu.Unlock()
		return
	}
	batch := make([]Bet, 0, len(m.dirty))
	for _, b := range m.dirty {
		batch = append(batch, b)
	}
	m.dirty = make(map[int64]Bet)
	m.dirtyMu.Unlock()

	m.sweepWG.Add(1)
	go func() {
		defer m.sweepWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := range batch {
			if err := m.store.SaveBet(ctx, &batch[i]); err != nil {
				log.Printf("[GAME] sweep write failed for bet %d: %v", batch[i].ID, err)
				m.markDirty(&batch[i])
			}
		}
	}()
}

func (m *Manager) teardown() {
	log.Println("[GAME] draining before shutdown")
	m.sweepWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.settler.Flush(ctx)
	m.sweepDirty()
	m.sweepWG.Wait()

	if n := m.settler.PendingRetries(); n > 0 {
		log.Printf("[GAME] ALERT: %d settlement writes still unrecorded at shutdown", n)
	}
	log.Println("[GAME] game loop stopped")
}

func (m *Manager) setPhase(phase Phase, round *Round) {
	m.stateMu.Lock()
	m.phase = phase
	if round != nil {
		m.round = round
	}
	if phase == PhaseBetting {
		m.round = nil
		m.mult = 1.0
	}
	m.stateMu.Unlock()
	m.publishState()
}

func (m *Manager) setMultiplier(mult float64) {
	m.stateMu.Lock()
	m.mult = mult
	m.stateMu.Unlock()
}

func (m *Manager) setCountdown(seconds float64) {
	m.stateMu.Lock()
	m.countdown = seconds
	m.stateMu.Unlock()
	m.publishState()
}

func (m *Manager) publishState() {
	if m.mirror == nil {
		return
	}
	snap := m.CurrentState()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		m.mirror.PublishState(ctx, snap)
	}()
}

func (m *Manager) broadcastLeaderboard(isFinal bool) {
	m.hub.Broadcast(wsMessage("leaderboard", map[string]interface{}{
		"entries":  m.ledger.Snapshot(),
		"is_final": isFinal,
	}))
}

func wsMessage(msgType string, data map[string]interface{}) map[string]interface{} {
	msg := map[string]interface{}{"type": msgType}
	for k, v := range data {
		msg[k] = v
	}
	return msg
}
