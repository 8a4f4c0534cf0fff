package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"backend/internal/engine"
	"backend/internal/logger"
	"backend/internal/store"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	logger.Initialize(logger.Configuration{})
	os.Exit(m.Run())
}

const (
	testOwner  = "0:0000000000000000000000000000000000000000000000000000000000000001"
	testPlayer = "0:00000000000000000000000000000000000000000000000000000000000000aa"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()

	eng := engine.New(store.NewMemoryStore(), nil)
	_, err := eng.Initialize(engine.Env{Sender: testOwner, Time: time.Now().UTC(), Height: 1}, engine.InitMsg{
		Rounds: engine.InitRounds{
			Configs: []engine.Config{{
				Targets:     engine.Targets{FundingLevel: 100},
				Selection:   engine.WinnerSelection{Method: engine.SelectionFixed, FixedSplit: []uint8{70, 30}},
				Token:       engine.Token{Kind: engine.TokenNative},
				TicketPrice: 10,
			}},
			Count: 1,
		},
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}

	router := gin.New()
	NewHTTPHandler(eng, nil).RegisterRoutes(router)
	return router
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(method, path, strings.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestBuyTicketsEndpoint(t *testing.T) {
	t.Run("accepts a purchase", func(t *testing.T) {
		router := newTestRouter(t)
		body := fmt.Sprintf(`{"sender":%q,"count":3,"payment":30}`, testPlayer)
		response := doJSON(router, http.MethodPost, "/tickets", body)
		if response.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
		}

		response = doJSON(router, http.MethodGet, "/rounds/0?players=true", "")
		if response.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", response.Code)
		}
		var view engine.RoundView
		if err := json.Unmarshal(response.Body.Bytes(), &view); err != nil {
			t.Fatal(err)
		}
		if view.Counts.Tickets != 3 || len(view.Players) != 1 {
			t.Fatalf("purchase not reflected in the round view: %+v", view)
		}
	})

	t.Run("rejects a malformed sender", func(t *testing.T) {
		router := newTestRouter(t)
		response := doJSON(router, http.MethodPost, "/tickets", `{"sender":"nonsense","count":1,"payment":10}`)
		if response.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", response.Code)
		}
	})

	t.Run("maps a short payment to payment required", func(t *testing.T) {
		router := newTestRouter(t)
		body := fmt.Sprintf(`{"sender":%q,"count":3,"payment":29}`, testPlayer)
		response := doJSON(router, http.MethodPost, "/tickets", body)
		if response.Code != http.StatusPaymentRequired {
			t.Fatalf("expected 402, got %d: %s", response.Code, response.Body.String())
		}
	})
}

func TestCancelAndRefundEndpoints(t *testing.T) {
	t.Run("non-owner cancel is forbidden", func(t *testing.T) {
		router := newTestRouter(t)
		response := doJSON(router, http.MethodPost, "/cancel", fmt.Sprintf(`{"sender":%q}`, testPlayer))
		if response.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", response.Code)
		}
	})

	t.Run("refund on a live round is forbidden", func(t *testing.T) {
		router := newTestRouter(t)
		body := fmt.Sprintf(`{"sender":%q,"round_index":0,"recipient":%q}`, testOwner, testPlayer)
		response := doJSON(router, http.MethodPost, "/refunds", body)
		if response.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d: %s", response.Code, response.Body.String())
		}
	})

	t.Run("refund pays back the wallet's spend", func(t *testing.T) {
		router := newTestRouter(t)
		doJSON(router, http.MethodPost, "/tickets", fmt.Sprintf(`{"sender":%q,"count":3,"payment":30}`, testPlayer))
		doJSON(router, http.MethodPost, "/cancel", fmt.Sprintf(`{"sender":%q}`, testOwner))

		body := fmt.Sprintf(`{"sender":%q,"round_index":0,"recipient":%q}`, testOwner, testPlayer)
		response := doJSON(router, http.MethodPost, "/refunds", body)
		if response.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", response.Code, response.Body.String())
		}
		var payload struct {
			Payout engine.Payout `json:"payout"`
		}
		if err := json.Unmarshal(response.Body.Bytes(), &payload); err != nil {
			t.Fatal(err)
		}
		if payload.Payout.Amount != 30 {
			t.Fatalf("expected a 30 refund, got %+v", payload.Payout)
		}
	})
}

func TestGetRoundEndpoint(t *testing.T) {
	router := newTestRouter(t)

	response := doJSON(router, http.MethodGet, "/rounds/5", "")
	if response.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.Code)
	}

	response = doJSON(router, http.MethodGet, "/rounds/abc", "")
	if response.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.Code)
	}
}
