package server

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crashgame/internal/cache"
	"crashgame/internal/database"
	"crashgame/internal/game"
)

type FiberServer struct {
	*fiber.App

	db          database.Service
	cache       cache.Service
	live        *cache.LiveState
	gameManager *game.Manager
	gameHub     *game.Hub
}

func New() *FiberServer {
	db := database.New()

	// The engine runs without Redis; reconnect catch-up and cached history
	// just degrade to the database.
	redisService := cache.New()
	if redisService == nil {
		log.Println("[SERVER] Redis unavailable, live-state mirror disabled")
	}
	live := cache.NewLiveState(redisService)

	hub := game.NewHub()
	var mirror game.Mirror
	if live != nil {
		mirror = live
	}
	manager := game.NewManager(db, hub, mirror, game.DefaultConfig())

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crashgame",
			AppName:       "crashgame",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:          db,
		cache:       redisService,
		live:        live,
		gameManager: manager,
		gameHub:     hub,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	manager.Start()

	log.Println("[SERVER] round engine started")

	return server
}

// Shutdown stops the round engine (draining any in-flight settlement) and
// closes the collaborators.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.gameManager != nil {
		s.gameManager.Stop()
	}
	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
