package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/config"
	"github.com/ArowuTest/raffle-engine/internal/handlers"
	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/repositories/memory"
	"github.com/ArowuTest/raffle-engine/internal/services"
	"github.com/ArowuTest/raffle-engine/pkg/chaingateway"
	"github.com/ArowuTest/raffle-engine/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router  *gin.Engine
	gateway *chaingateway.MockGateway
	tokens  *jwt.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedHosts: []string{"*"}},
		Dispersal: config.DispersalConfig{
			TreasuryAddress:   "kaspa:treasury",
			MaxRaffleDuration: 120 * time.Hour,
		},
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	gateway := chaingateway.NewMockGateway()
	tokens := jwt.NewTokenService("test-secret", "raffle-engine", time.Hour)
	raffles := services.NewRaffleService(memory.NewRaffleRepository(), gateway, gateway, cfg.Dispersal, nil)
	auth := services.NewAuthService([]models.Operator{{Email: "ops@example.com", PasswordHash: string(hash)}}, tokens)

	router := SetupRouter(cfg, HandlerDependencies{
		AuthHandler:   handlers.NewAuthHandler(auth),
		RaffleHandler: handlers.NewRaffleHandler(raffles),
		Tokens:        tokens,
	})
	return &testServer{router: router, gateway: gateway, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: "ops@example.com", Password: "s3cret"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func validRequest() models.CreateRaffleRequest {
	return models.CreateRaffleRequest{
		Creator:          "kaspa:creator",
		DepositAsset:     models.NativeAsset,
		PrizeAsset:       models.NativeAsset,
		PrizeAmount:      100,
		CreditConversion: 100,
		ExpiresAt:        time.Now().Add(time.Hour),
		WinnersRequested: 1,
		ReceivingAddress: "kaspa:raffle",
		KeyRef:           "raffle-key",
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLoginEndpoint(t *testing.T) {
	s := newTestServer(t)
	assert.NotEmpty(t, s.login(t))

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", models.LoginRequest{Email: "ops@example.com", Password: "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/raffles", validRequest(), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/raffles", validRequest(), "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")

	expired := jwt.NewTokenService("test-secret", "raffle-engine", -time.Minute)
	token, _, err := expired.Issue("ops@example.com", "operator")
	require.NoError(t, err)
	w = s.do(t, http.MethodPost, "/api/v1/raffles", validRequest(), token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token has expired")
}

func TestRaffleEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	w := s.do(t, http.MethodPost, "/api/v1/raffles", validRequest(), token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Raffle
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, models.RaffleStatusLive, created.Status)
	assert.Equal(t, "kaspa:treasury", created.TreasuryAddress)
	assert.NotContains(t, w.Body.String(), "raffle-key", "key reference is never serialised")

	s.gateway.AddTransaction("kaspa:raffle", models.NativeAsset, models.ChainTransaction{
		TxID:      "tx-1",
		Operation: models.OperationTransfer,
		From:      "kaspa:alice",
		Outputs:   []models.TxOutput{{Address: "kaspa:raffle", Amount: 250}},
	})
	w = s.do(t, http.MethodPost, "/api/v1/raffles/"+created.RaffleID+"/process", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var processed struct {
		Raffle   models.Raffle `json:"raffle"`
		Credited int           `json:"credited"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &processed))
	assert.Equal(t, 1, processed.Credited)
	assert.InDelta(t, 2.5, processed.Raffle.TotalEntries, 1e-9)

	w = s.do(t, http.MethodGet, "/api/v1/raffles/"+created.RaffleID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/raffles/does-not-exist", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/raffles?creator=kaspa:creator", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Raffles []models.Raffle `json:"raffles"`
		Count   int             `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	w = s.do(t, http.MethodGet, "/api/v1/raffles?status=pending", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/raffles/"+created.RaffleID+"/lease/release", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateRaffleRejectsInvalidInput(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	req := validRequest()
	req.ExpiresAt = time.Now().Add(-time.Hour)
	w := s.do(t, http.MethodPost, "/api/v1/raffles", req, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = validRequest()
	req.DepositAsset = models.Asset{Kind: models.AssetKindToken, Ticker: "GHOST"}
	w = s.do(t, http.MethodPost, "/api/v1/raffles", req, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not fully deployed")

	w = s.do(t, http.MethodPost, "/api/v1/raffles", map[string]string{"creator": "kaspa:creator"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
