package chaingateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/utils"
	"golang.org/x/time/rate"
)

// Gateway reports confirmed inbound transactions and balances for an address.
// Results are eventually consistent and may repeat across calls.
type Gateway interface {
	Transactions(ctx context.Context, address string, asset models.Asset) ([]models.ChainTransaction, error)
	Balance(ctx context.Context, address string, asset models.Asset) (float64, error)
}

// TokenValidator checks that a token ticker exists and is fully deployed
type TokenValidator interface {
	TokenDeployed(ctx context.Context, ticker string) (bool, error)
}

// ErrUnexpectedResponse is returned when an API answers with an unsuccessful payload
var ErrUnexpectedResponse = errors.New("unexpected gateway response")

// Config holds the KaspaGateway settings
type Config struct {
	KaspaAPIURL       string
	KasplexAPIURL     string
	PageSize          int
	MaxPages          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// KaspaGateway queries the Kaspa REST API for native transfers and the
// Kasplex API for KRC-20 operations
type KaspaGateway struct {
	kaspaURL   string
	kasplexURL string
	pageSize   int
	maxPages   int
	limiter    *rate.Limiter
	client     *http.Client

	mu       sync.Mutex
	decimals map[string]int32
}

var (
	_ Gateway        = (*KaspaGateway)(nil)
	_ TokenValidator = (*KaspaGateway)(nil)
)

// NewKaspaGateway creates a new KaspaGateway
func NewKaspaGateway(cfg Config) *KaspaGateway {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &KaspaGateway{
		kaspaURL:   strings.TrimRight(cfg.KaspaAPIURL, "/"),
		kasplexURL: strings.TrimRight(cfg.KasplexAPIURL, "/"),
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		limiter:    rate.NewLimiter(limit, 1),
		client:     &http.Client{Timeout: cfg.Timeout},
		decimals:   make(map[string]int32),
	}
}

// Transactions returns the confirmed transfers into address for the asset
func (g *KaspaGateway) Transactions(ctx context.Context, address string, asset models.Asset) ([]models.ChainTransaction, error) {
	if asset.IsNative() {
		return g.nativeTransactions(ctx, address)
	}
	return g.tokenTransactions(ctx, address, utils.NormalizeTicker(asset.Ticker))
}

// Balance returns the address balance in display units
func (g *KaspaGateway) Balance(ctx context.Context, address string, asset models.Asset) (float64, error) {
	if asset.IsNative() {
		return g.nativeBalance(ctx, address)
	}
	return g.tokenBalance(ctx, address, utils.NormalizeTicker(asset.Ticker))
}

type kaspaOutput struct {
	Amount  json.Number `json:"amount"`
	Address string      `json:"script_public_key_address"`
}

type kaspaInput struct {
	PreviousOutpointAddress string `json:"previous_outpoint_address"`
}

type kaspaTransaction struct {
	TransactionID string        `json:"transaction_id"`
	Hash          string        `json:"hash"`
	BlockTime     int64         `json:"block_time"`
	IsAccepted    bool          `json:"is_accepted"`
	Inputs        []kaspaInput  `json:"inputs"`
	Outputs       []kaspaOutput `json:"outputs"`
}

func (g *KaspaGateway) nativeTransactions(ctx context.Context, address string) ([]models.ChainTransaction, error) {
	var out []models.ChainTransaction
	for page := 0; page < g.maxPages; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(g.pageSize))
		q.Set("offset", strconv.Itoa(page*g.pageSize))
		q.Set("resolve_previous_outpoints", "light")
		endpoint := fmt.Sprintf("%s/addresses/%s/full-transactions?%s", g.kaspaURL, url.PathEscape(address), q.Encode())

		var txs []kaspaTransaction
		if err := g.getJSON(ctx, endpoint, &txs); err != nil {
			return nil, fmt.Errorf("fetch KAS transactions for %s: %w", utils.MaskAddress(address), err)
		}
		for _, tx := range txs {
			if !tx.IsAccepted {
				continue
			}
			out = append(out, convertNative(tx))
		}
		if len(txs) < g.pageSize {
			break
		}
	}
	return out, nil
}

// convertNative keeps unparseable outputs as NaN so the ledger rejects the
// whole transaction instead of crediting a partial amount
func convertNative(tx kaspaTransaction) models.ChainTransaction {
	id := tx.TransactionID
	if id == "" {
		id = tx.Hash
	}
	ct := models.ChainTransaction{TxID: id, Operation: models.OperationTransfer}
	if len(tx.Inputs) > 0 {
		ct.From = tx.Inputs[0].PreviousOutpointAddress
	}
	if tx.BlockTime > 0 {
		ct.AcceptedAt = time.UnixMilli(tx.BlockTime).UTC()
	}
	for _, o := range tx.Outputs {
		amount, err := utils.FromBaseUnits(o.Amount.String(), utils.BaseUnitDecimals)
		if err != nil {
			amount = math.NaN()
		}
		ct.Outputs = append(ct.Outputs, models.TxOutput{Address: o.Address, Amount: amount})
	}
	return ct
}

type kasplexOp struct {
	Op       string `json:"op"`
	Tick     string `json:"tick"`
	Amt      string `json:"amt"`
	From     string `json:"from"`
	To       string `json:"to"`
	HashRev  string `json:"hashRev"`
	OpAccept string `json:"opAccept"`
	MtsMod   string `json:"mtsMod"`
}

type kasplexOpList struct {
	Message string      `json:"message"`
	Next    string      `json:"next"`
	Result  []kasplexOp `json:"result"`
}

func (g *KaspaGateway) tokenTransactions(ctx context.Context, address, ticker string) ([]models.ChainTransaction, error) {
	decimals, err := g.tokenDecimals(ctx, ticker)
	if err != nil {
		return nil, err
	}
	var out []models.ChainTransaction
	next := ""
	for page := 0; page < g.maxPages; page++ {
		q := url.Values{}
		q.Set("address", address)
		q.Set("tick", ticker)
		if next != "" {
			q.Set("next", next)
		}
		var list kasplexOpList
		if err := g.getJSON(ctx, g.kasplexURL+"/v1/krc20/oplist?"+q.Encode(), &list); err != nil {
			return nil, fmt.Errorf("fetch %s operations for %s: %w", ticker, utils.MaskAddress(address), err)
		}
		if list.Message != "successful" {
			return nil, fmt.Errorf("%s oplist: %q: %w", ticker, list.Message, ErrUnexpectedResponse)
		}
		for _, op := range list.Result {
			if op.OpAccept != "1" {
				continue
			}
			out = append(out, convertToken(op, decimals))
		}
		if list.Next == "" || len(list.Result) == 0 {
			break
		}
		next = list.Next
	}
	return out, nil
}

func convertToken(op kasplexOp, decimals int32) models.ChainTransaction {
	amount, err := utils.FromBaseUnits(op.Amt, decimals)
	if err != nil {
		amount = math.NaN()
	}
	ct := models.ChainTransaction{
		TxID:      op.HashRev,
		Operation: strings.ToLower(op.Op),
		From:      op.From,
		Outputs:   []models.TxOutput{{Address: op.To, Amount: amount}},
	}
	if ms, err := strconv.ParseInt(op.MtsMod, 10, 64); err == nil && ms > 0 {
		ct.AcceptedAt = time.UnixMilli(ms).UTC()
	}
	return ct
}

func (g *KaspaGateway) nativeBalance(ctx context.Context, address string) (float64, error) {
	var body struct {
		Address string      `json:"address"`
		Balance json.Number `json:"balance"`
	}
	endpoint := fmt.Sprintf("%s/addresses/%s/balance", g.kaspaURL, url.PathEscape(address))
	if err := g.getJSON(ctx, endpoint, &body); err != nil {
		return 0, fmt.Errorf("fetch KAS balance for %s: %w", utils.MaskAddress(address), err)
	}
	return utils.FromBaseUnits(body.Balance.String(), utils.BaseUnitDecimals)
}

type kasplexTokenBalance struct {
	Message string `json:"message"`
	Result  []struct {
		Tick    string `json:"tick"`
		Balance string `json:"balance"`
	} `json:"result"`
}

// tokenBalance scales the balance with the ticker's deployed decimals, the
// same scale used for oplist amounts
func (g *KaspaGateway) tokenBalance(ctx context.Context, address, ticker string) (float64, error) {
	decimals, err := g.tokenDecimals(ctx, ticker)
	if err != nil {
		return 0, err
	}
	var body kasplexTokenBalance
	endpoint := fmt.Sprintf("%s/v1/krc20/address/%s/token/%s", g.kasplexURL, url.PathEscape(address), url.PathEscape(ticker))
	if err := g.getJSON(ctx, endpoint, &body); err != nil {
		return 0, fmt.Errorf("fetch %s balance for %s: %w", ticker, utils.MaskAddress(address), err)
	}
	if body.Message != "successful" {
		return 0, fmt.Errorf("%s balance: %q: %w", ticker, body.Message, ErrUnexpectedResponse)
	}
	if len(body.Result) == 0 {
		return 0, nil
	}
	return utils.FromBaseUnits(body.Result[0].Balance, decimals)
}

type kasplexTokenInfo struct {
	Message string `json:"message"`
	Result  []struct {
		Tick  string `json:"tick"`
		State string `json:"state"`
		Dec   string `json:"dec"`
	} `json:"result"`
}

func (g *KaspaGateway) tokenInfo(ctx context.Context, ticker string) (kasplexTokenInfo, error) {
	var body kasplexTokenInfo
	endpoint := fmt.Sprintf("%s/v1/krc20/token/%s", g.kasplexURL, url.PathEscape(ticker))
	if err := g.getJSON(ctx, endpoint, &body); err != nil {
		return body, fmt.Errorf("fetch token info for %s: %w", ticker, err)
	}
	return body, nil
}

// tokenDecimals returns the ticker's deployed decimals, cached after the
// first successful lookup. Tickers without a dec field use BaseUnitDecimals.
func (g *KaspaGateway) tokenDecimals(ctx context.Context, ticker string) (int32, error) {
	g.mu.Lock()
	dec, ok := g.decimals[ticker]
	g.mu.Unlock()
	if ok {
		return dec, nil
	}

	info, err := g.tokenInfo(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if len(info.Result) == 0 {
		return 0, fmt.Errorf("token %s not found: %w", ticker, ErrUnexpectedResponse)
	}
	dec = int32(utils.BaseUnitDecimals)
	if raw := strings.TrimSpace(info.Result[0].Dec); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			return 0, fmt.Errorf("token %s dec %q: %w", ticker, raw, ErrUnexpectedResponse)
		}
		dec = int32(d)
	}

	g.mu.Lock()
	g.decimals[ticker] = dec
	g.mu.Unlock()
	return dec, nil
}

// TokenDeployed reports whether the Kasplex API lists the ticker as finished
func (g *KaspaGateway) TokenDeployed(ctx context.Context, ticker string) (bool, error) {
	info, err := g.tokenInfo(ctx, utils.NormalizeTicker(ticker))
	if err != nil {
		return false, err
	}
	if len(info.Result) == 0 {
		return false, nil
	}
	return strings.EqualFold(info.Result[0].State, "finished"), nil
}

func (g *KaspaGateway) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(snippet)), ErrUnexpectedResponse)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
