package messages

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Egham-7/medchat/internal/models"
	"github.com/Egham-7/medchat/internal/services/response"
	"github.com/Egham-7/medchat/internal/services/stream/contracts"

	"github.com/gofiber/fiber/v2"
)

func TestParseRequest(t *testing.T) {
	rs := NewRequestService()
	respSvc := NewResponseService(models.StreamConfig{})

	app := fiber.New()
	app.Post("/chat", func(c *fiber.Ctx) error {
		req, err := rs.ParseRequest(c)
		if err != nil {
			return respSvc.HandleError(c, err, rs.GetRequestID(c))
		}
		return c.JSON(req)
	})

	tests := []struct {
		name    string
		body    string
		status  int
		errType string
	}{
		{name: "valid", body: `{"id":"c1","messages":[{"role":"user","content":"hi"}],"modelId":"claude-3-5-haiku"}`, status: 200},
		{name: "invalid json", body: `{"id":`, status: 400, errType: "validation"},
		{name: "missing id", body: `{"messages":[{"role":"user","content":"hi"}]}`, status: 400, errType: "validation"},
		{name: "no messages", body: `{"id":"c1","messages":[]}`, status: 400, errType: "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Request-ID", "req_fixed")

			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if resp.Header.Get("X-Request-ID") != "req_fixed" {
				t.Fatalf("request id not echoed: %q", resp.Header.Get("X-Request-ID"))
			}
			if tt.errType == "" {
				var parsed models.ChatRequest
				if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
					t.Fatal(err)
				}
				if parsed.ModelID != "claude-3-5-haiku" || len(parsed.Messages) != 1 {
					t.Fatalf("parsed = %+v", parsed)
				}
				return
			}
			var body response.ErrorResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Type != tt.errType || body.Error.RequestID != "req_fixed" {
				t.Fatalf("error = %+v", body.Error)
			}
		})
	}
}

func TestHandleErrorMapsStreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		errType string
	}{
		{name: "upstream request", err: contracts.NewUpstreamRequestError("r", errors.New("529")), status: 502, errType: "provider"},
		{name: "idle timeout", err: contracts.NewIdleTimeoutError("r", nil), status: 502, errType: "provider"},
		{name: "cancelled", err: contracts.NewCancelledError("r", nil), status: 204},
		{name: "encoding", err: contracts.NewEncodingError("r", errors.New("bad utf8")), status: 500, errType: "internal"},
		{name: "not found", err: models.NewNotFoundError("Model"), status: 404, errType: "not_found"},
		{name: "plain error is hidden", err: errors.New("db password leaked"), status: 500, errType: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewResponseService(models.StreamConfig{})
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error { return rs.HandleError(c, tt.err, "r") })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.errType == "" {
				return
			}
			raw, _ := io.ReadAll(resp.Body)
			var body response.ErrorResponse
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatalf("decode %q: %v", raw, err)
			}
			if body.Error.Type != tt.errType {
				t.Fatalf("type = %q, want %q", body.Error.Type, tt.errType)
			}
			if strings.Contains(string(raw), "password") {
				t.Fatalf("internal detail leaked: %s", raw)
			}
		})
	}
}

func TestMostRecentUserMessage(t *testing.T) {
	msgs := []models.ChatMessage{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "reply"},
		{Role: "user", Content: "second"},
		{Role: "assistant", Content: "reply 2"},
	}
	got, err := MostRecentUserMessage(msgs)
	if err != nil || got.Content != "second" {
		t.Fatalf("got (%+v, %v)", got, err)
	}

	_, err = MostRecentUserMessage(msgs[1:2])
	var appErr *models.AppError
	if !errors.As(err, &appErr) || appErr.Type != models.ErrorTypeValidation {
		t.Fatalf("err = %v, want validation error", err)
	}
}
