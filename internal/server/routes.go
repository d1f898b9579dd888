package server

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/gofiber/contrib/websocket"

	"crashgame/internal/game"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/game/state", s.getGameStateHandler)
	api.Get("/game/history", s.getHistoryHandler)
	api.Post("/game/bet", s.placeBetHandler)
	api.Post("/game/cashout", s.cashoutHandler)
	api.Post("/user/:name", s.createUserHandler)
	api.Get("/user/:name/balance", s.getUserBalanceHandler)

	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"game": fiber.Map{
			"status":            "running",
			"phase":             s.gameManager.CurrentState().Phase,
			"connected_clients": s.gameHub.GetClientCount(),
		},
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}

// getGameStateHandler returns the current round snapshot.
func (s *FiberServer) getGameStateHandler(c *fiber.Ctx) error {
	return c.JSON(s.gameManager.CurrentState())
}

// getHistoryHandler returns recent crash points, Redis ring first, database
// as fallback.
func (s *FiberServer) getHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 50 {
		limit = 20
	}

	if s.live != nil {
		if history, err := s.live.History(c.Context(), limit); err == nil && len(history) > 0 {
			return c.JSON(fiber.Map{"history": history})
		}
	}

	rounds, err := s.db.RecentRounds(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load history"})
	}
	history := make([]fiber.Map, 0, len(rounds))
	for _, r := range rounds {
		history = append(history, fiber.Map{
			"round_id":    r.ID,
			"crash_point": r.CrashPoint,
			"commitment":  r.Commitment,
			"created_at":  r.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"history": history})
}

// placeBetHandler handles bet placement requests.
func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Username == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "username is required",
		})
	}

	resp := s.gameManager.PlaceBet(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}

	return c.JSON(resp)
}

// cashoutHandler handles cashout requests.
func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var req game.CashoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Username == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "username is required",
		})
	}

	resp := s.gameManager.Cashout(req)
	if !resp.Success {
		return c.Status(400).JSON(resp)
	}

	return c.JSON(resp)
}

// createUserHandler registers a player with the default starting balance.
func (s *FiberServer) createUserHandler(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "username is required"})
	}

	user, err := s.db.CreateUser(c.Context(), name)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create user"})
	}
	return c.Status(201).JSON(fiber.Map{
		"user_id":  user.UUID,
		"username": user.Name,
		"balance":  user.Balance,
	})
}

// getUserBalanceHandler returns a user's balance.
func (s *FiberServer) getUserBalanceHandler(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(400).JSON(fiber.Map{"error": "username is required"})
	}

	user, err := s.db.GetUserByName(c.Context(), name)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "user not found"})
	}

	return c.JSON(fiber.Map{
		"username": user.Name,
		"balance":  user.Balance,
	})
}

// gameWebSocketHandler speaks the live feed: place_bet / cashout / ping in,
// engine broadcasts and per-connection confirmations out.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	username := conn.Query("username", "anonymous")
	socketID := conn.RemoteAddr().String()

	log.Printf("[WS] new connection from user: %s (%s)", username, socketID)

	client := s.gameHub.RegisterClient(conn, username)
	client.SendInitialState(s.gameManager.CurrentState())

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] read error for user %s: %v", username, err)
			s.gameHub.UnregisterClient(conn)
			s.gameManager.HandleDisconnect(username)
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var clientMsg map[string]interface{}
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			continue
		}

		msgType, ok := clientMsg["type"].(string)
		if !ok {
			continue
		}

		switch msgType {
		case "place_bet":
			amount, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["amount"]), 64)

			resp := s.gameManager.PlaceBet(game.BetRequest{
				Username: username,
				Amount:   amount,
				SocketID: socketID,
			})

			writeWS(conn, username, confirmation("betConfirmed", resp.Success, resp.Message, resp))

		case "cashout":
			multiplier, _ := strconv.ParseFloat(fmt.Sprintf("%v", clientMsg["multiplier"]), 64)

			resp := s.gameManager.Cashout(game.CashoutRequest{
				Username:   username,
				Multiplier: multiplier,
			})

			writeWS(conn, username, confirmation("cashoutConfirmed", resp.Success, resp.Message, resp))

		case "ping":
			writeWS(conn, username, map[string]string{"type": "pong"})
		}
	}
}

func confirmation(okType string, success bool, message string, data interface{}) map[string]interface{} {
	if !success {
		return map[string]interface{}{
			"type":    "error",
			"message": message,
		}
	}
	return map[string]interface{}{
		"type": okType,
		"data": data,
	}
}

func writeWS(conn *websocket.Conn, username string, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] marshal error for user %s: %v", username, err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] write error for user %s: %v", username, err)
	}
}
