package server

import (
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestHealthRoute(t *testing.T) {
	// Minimal fiber app; the real health handler needs live collaborators.
	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})

	req, err := http.NewRequest("GET", "/health", nil)
	if err != nil {
		t.Fatalf("could not create request: %v", err)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("could not unmarshal response: %v", err)
	}

	if result["status"] != "ok" {
		t.Errorf("expected status to be 'ok'; got %v", result["status"])
	}
}

func TestConfirmation(t *testing.T) {
	tests := []struct {
		name     string
		okType   string
		success  bool
		message  string
		wantType string
	}{
		{
			name:     "successful bet",
			okType:   "betConfirmed",
			success:  true,
			wantType: "betConfirmed",
		},
		{
			name:     "successful cashout",
			okType:   "cashoutConfirmed",
			success:  true,
			wantType: "cashoutConfirmed",
		},
		{
			name:     "rejection becomes an error frame",
			okType:   "betConfirmed",
			success:  false,
			message:  "insufficient balance",
			wantType: "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := confirmation(tt.okType, tt.success, tt.message, map[string]string{"k": "v"})

			if got["type"] != tt.wantType {
				t.Errorf("type = %v, want %v", got["type"], tt.wantType)
			}
			if tt.success {
				if _, ok := got["data"]; !ok {
					t.Error("success frame missing data payload")
				}
				if _, ok := got["message"]; ok {
					t.Error("success frame should not carry a message")
				}
			} else {
				if got["message"] != tt.message {
					t.Errorf("message = %v, want %v", got["message"], tt.message)
				}
				if _, ok := got["data"]; ok {
					t.Error("error frame should not carry a data payload")
				}
			}
		})
	}
}
