package game

import (
	"sync"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil {
		t.Error("Hub register channel is nil")
	}
	if hub.unregister == nil {
		t.Error("Hub unregister channel is nil")
	}
}

func TestHub_GetClientCount(t *testing.T) {
	hub := NewHub()

	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	// A game event with no clients connected must still drain.
	hub.Broadcast(map[string]interface{}{
		"type": "round_start",
		"data": map[string]interface{}{"round_id": 1},
	})

	time.Sleep(10 * time.Millisecond)
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()

	// Hub not running, so the channel fills to capacity (100).
	for i := 0; i < 100; i++ {
		hub.Broadcast(map[string]string{"type": "multiplier"})
	}

	// The tick loop calls Broadcast directly; a full feed must drop the
	// message, never stall the loop.
	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(map[string]string{"type": "multiplier"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(map[string]interface{}{
				"type": "multiplier",
				"data": map[string]interface{}{"value": n},
			})
		}(i)
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("concurrent broadcasts timed out")
	}
}

func TestHub_RegisterClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := hub.RegisterClient(nil, "alice")
	if client == nil {
		t.Fatal("RegisterClient() returned nil")
	}

	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("GetClientCount() = %d after register, want 1", hub.GetClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_GetClientCount_ThreadSafe(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = hub.GetClientCount()
		}()
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("concurrent GetClientCount() timed out")
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()

	time.Sleep(10 * time.Millisecond)

	message := map[string]interface{}{
		"type": "multiplier",
		"data": map[string]interface{}{"value": 1.2345},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(message)
	}
}
