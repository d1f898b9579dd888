package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"crashgame/internal/server"
)

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	done := make(chan struct{})
	go gracefulShutdown(srv, done)

	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 4000
	}
	if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
		log.Fatalf("[SERVER] listen error: %v", err)
	}

	<-done
	log.Println("[SERVER] graceful shutdown complete")
}

func gracefulShutdown(srv *server.FiberServer, done chan struct{}) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("[SERVER] shutdown signal received")

	// Stop taking requests first, then drain the round engine.
	if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("[SERVER] http shutdown error: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[SERVER] shutdown error: %v", err)
	}

	close(done)
}
