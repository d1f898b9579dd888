package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"crashgame/internal/game"
)

// Service is the durable store for rounds, bets, and user balances. It
// implements game.Store.
type Service interface {
	game.Store

	CreateUser(ctx context.Context, name string) (*game.User, error)
	SetBalance(ctx context.Context, userID string, balance float64) error
	RecentRounds(ctx context.Context, limit int) ([]game.Round, error)

	Health() map[string]string
	DB() *sql.DB
	Close() error
}

type service struct {
	db *sql.DB
}

var (
	database   = os.Getenv("CRASH_DB_DATABASE")
	password   = os.Getenv("CRASH_DB_PASSWORD")
	username   = os.Getenv("CRASH_DB_USERNAME")
	port       = os.Getenv("CRASH_DB_PORT")
	host       = os.Getenv("CRASH_DB_HOST")
	schema     = os.Getenv("CRASH_DB_SCHEMA")
	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("[DB] open failed: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	dbInstance = &service{db: db}
	return dbInstance
}

func (s *service) DB() *sql.DB {
	return s.db
}

// CreateRound persists a round before any tick references it.
func (s *service) CreateRound(ctx context.Context, round *game.Round) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO rounds (crash_point, server_seed, commitment)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		round.CrashPoint, round.ServerSeed, round.Commitment,
	).Scan(&round.ID, &round.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: create round: %v", game.ErrPersistence, err)
	}
	return nil
}

// SaveBet inserts when the bet has no identity yet and updates otherwise.
func (s *service) SaveBet(ctx context.Context, bet *game.Bet) error {
	if bet.ID == 0 {
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO bets (user_id, round_id, amount, cashout_at, crash, result, current_flag, socket_id)
			VALUES ($1, NULLIF($2, 0), $3, NULLIF($4, 0), NULLIF($5, 0), $6, $7, $8)
			RETURNING id, created_at`,
			bet.UserID, bet.RoundID, bet.Amount, bet.CashoutAt, bet.Crash,
			bet.Result, bet.Current, bet.SocketID,
		).Scan(&bet.ID, &bet.CreatedAt)
		if err != nil {
			return fmt.Errorf("%w: insert bet: %v", game.ErrPersistence, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE bets
		SET round_id = NULLIF($1, 0),
		    cashout_at = NULLIF($2, 0),
		    crash = NULLIF($3, 0),
		    result = $4,
		    current_flag = $5,
		    updated_at = now()
		WHERE id = $6`,
		bet.RoundID, bet.CashoutAt, bet.Crash, bet.Result, bet.Current, bet.ID)
	if err != nil {
		return fmt.Errorf("%w: update bet %d: %v", game.ErrPersistence, bet.ID, err)
	}
	return nil
}

// PendingBets returns every bet still flagged current and unresolved, ordered
// by descending amount, for crash recovery and carry-forward.
func (s *service) PendingBets(ctx context.Context) ([]*game.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.user_id, u.name, COALESCE(b.round_id, 0), b.amount,
		       COALESCE(b.cashout_at, 0), b.result, b.current_flag,
		       COALESCE(b.socket_id, ''), b.created_at
		FROM bets b
		JOIN users u ON u.uuid = b.user_id
		WHERE b.current_flag AND b.result = 'pending'
		ORDER BY b.amount DESC, b.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: pending bets: %v", game.ErrPersistence, err)
	}
	defer rows.Close()

	var bets []*game.Bet
	for rows.Next() {
		var b game.Bet
		if err := rows.Scan(&b.ID, &b.UserID, &b.Username, &b.RoundID, &b.Amount,
			&b.CashoutAt, &b.Result, &b.Current, &b.SocketID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan bet: %v", game.ErrPersistence, err)
		}
		bets = append(bets, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: pending bets: %v", game.ErrPersistence, err)
	}
	return bets, nil
}

func (s *service) GetUserByName(ctx context.Context, name string) (*game.User, error) {
	var u game.User
	err := s.db.QueryRowContext(ctx,
		`SELECT uuid, name, balance FROM users WHERE name = $1`, name,
	).Scan(&u.UUID, &u.Name, &u.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, game.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", game.ErrPersistence, err)
	}
	return &u, nil
}

// AdjustBalance applies a signed delta in one statement; the row lock
// serializes concurrent mutation of the same balance and GREATEST clamps the
// floor at zero.
func (s *service) AdjustBalance(ctx context.Context, userID string, delta float64) (float64, error) {
	var balance float64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET balance = GREATEST(0, ROUND((balance + $1)::numeric, 4)), updated_at = now()
		WHERE uuid = $2
		RETURNING balance`,
		delta, userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, game.ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: adjust balance: %v", game.ErrPersistence, err)
	}
	return balance, nil
}

// CreateUser registers a player with the default starting balance.
func (s *service) CreateUser(ctx context.Context, name string) (*game.User, error) {
	var u game.User
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET updated_at = now()
		RETURNING uuid, name, balance`,
		name,
	).Scan(&u.UUID, &u.Name, &u.Balance)
	if err != nil {
		return nil, fmt.Errorf("%w: create user: %v", game.ErrPersistence, err)
	}
	return &u, nil
}

func (s *service) SetBalance(ctx context.Context, userID string, balance float64) error {
	if balance < 0 {
		balance = 0
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET balance = $1, updated_at = now() WHERE uuid = $2`,
		balance, userID)
	if err != nil {
		return fmt.Errorf("%w: set balance: %v", game.ErrPersistence, err)
	}
	return nil
}

// RecentRounds returns the latest crashed rounds, newest first.
func (s *service) RecentRounds(ctx context.Context, limit int) ([]game.Round, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, crash_point, server_seed, commitment, created_at
		FROM rounds
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent rounds: %v", game.ErrPersistence, err)
	}
	defer rows.Close()

	var rounds []game.Round
	for rows.Next() {
		var r game.Round
		if err := rows.Scan(&r.ID, &r.CrashPoint, &r.ServerSeed, &r.Commitment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan round: %v", game.ErrPersistence, err)
		}
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)
	stats["wait_duration"] = dbStats.WaitDuration.String()

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] disconnecting from %s", database)
	return s.db.Close()
}
