package chaingateway

import (
	"context"
	"sync"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/internal/utils"
)

// MockGateway is an in-memory Gateway for tests and local runs
type MockGateway struct {
	mu           sync.Mutex
	transactions map[string][]models.ChainTransaction
	balances     map[string]float64
	tokens       map[string]bool
	err          error
}

var (
	_ Gateway        = (*MockGateway)(nil)
	_ TokenValidator = (*MockGateway)(nil)
)

// NewMockGateway creates an empty MockGateway
func NewMockGateway() *MockGateway {
	return &MockGateway{
		transactions: make(map[string][]models.ChainTransaction),
		balances:     make(map[string]float64),
		tokens:       make(map[string]bool),
	}
}

func mockKey(address string, asset models.Asset) string {
	return address + "|" + asset.Symbol()
}

// AddTransaction makes tx visible to Transactions for address and asset
func (m *MockGateway) AddTransaction(address string, asset models.Asset, tx models.ChainTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mockKey(address, asset)
	m.transactions[key] = append(m.transactions[key], tx)
}

// SetBalance sets the balance reported for address and asset
func (m *MockGateway) SetBalance(address string, asset models.Asset, balance float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[mockKey(address, asset)] = balance
}

// AdjustBalance adds delta to the balance reported for address and asset
func (m *MockGateway) AdjustBalance(address string, asset models.Asset, delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[mockKey(address, asset)] += delta
}

// DeployToken marks a ticker as fully deployed
func (m *MockGateway) DeployToken(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[utils.NormalizeTicker(ticker)] = true
}

// SetError makes every call fail with err until it is set back to nil
func (m *MockGateway) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockGateway) Transactions(ctx context.Context, address string, asset models.Asset) ([]models.ChainTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	txs := m.transactions[mockKey(address, asset)]
	out := make([]models.ChainTransaction, len(txs))
	copy(out, txs)
	return out, nil
}

func (m *MockGateway) Balance(ctx context.Context, address string, asset models.Asset) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	return m.balances[mockKey(address, asset)], nil
}

func (m *MockGateway) TokenDeployed(ctx context.Context, ticker string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	return m.tokens[utils.NormalizeTicker(ticker)], nil
}
