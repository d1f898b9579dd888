package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"crashgame/internal/game"
)

const (
	keyCurrentState = "crash:round:current"
	keyHistory      = "crash:history"
	historyLen      = 50
	stateTTL        = 1 * time.Minute
)

// LiveState mirrors the engine's state into Redis so reconnecting clients and
// the history endpoint never touch the game loop. All writes are best-effort;
// the engine runs fine with Redis down.
type LiveState struct {
	client *redis.Client
}

func NewLiveState(svc Service) *LiveState {
	if svc == nil {
		return nil
	}
	return &LiveState{client: svc.GetClient()}
}

// PublishState implements game.Mirror.
func (l *LiveState) PublishState(ctx context.Context, state game.StateSnapshot) {
	data, err := json.Marshal(state)
	if err != nil {
		log.Printf("[CACHE] state marshal error: %v", err)
		return
	}
	if err := l.client.Set(ctx, keyCurrentState, data, stateTTL).Err(); err != nil {
		log.Printf("[CACHE] state publish failed: %v", err)
	}
}

// PushCrash implements game.Mirror: prepend the crash to the history ring.
func (l *LiveState) PushCrash(ctx context.Context, roundID int64, crashPoint float64) {
	entry, _ := json.Marshal(map[string]interface{}{
		"round_id":    roundID,
		"crash_point": crashPoint,
	})
	pipe := l.client.Pipeline()
	pipe.LPush(ctx, keyHistory, entry)
	pipe.LTrim(ctx, keyHistory, 0, historyLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[CACHE] history push failed: %v", err)
	}
}

// CurrentState returns the last mirrored snapshot, or nil when absent.
func (l *LiveState) CurrentState(ctx context.Context) (*game.StateSnapshot, error) {
	data, err := l.client.Get(ctx, keyCurrentState).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state game.StateSnapshot
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// History returns up to limit recent crashes, newest first.
func (l *LiveState) History(ctx context.Context, limit int) ([]map[string]interface{}, error) {
	raw, err := l.client.LRange(ctx, keyHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		var entry map[string]interface{}
		if json.Unmarshal([]byte(item), &entry) == nil {
			out = append(out, entry)
		}
	}
	return out, nil
}
