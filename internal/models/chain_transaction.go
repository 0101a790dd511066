package models

import "time"

// OperationTransfer is the only operation kind eligible for crediting
const OperationTransfer = "transfer"

// TxOutput is a single destination of a chain transaction
type TxOutput struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// ChainTransaction is an inbound transaction as reported by the chain gateway.
// Native transfers may fan out to several outputs; token transfers carry one.
type ChainTransaction struct {
	TxID       string     `json:"txid"`
	Operation  string     `json:"operation"`
	From       string     `json:"from"`
	Outputs    []TxOutput `json:"outputs"`
	AcceptedAt time.Time  `json:"acceptedAt,omitempty"`
}

// AmountTo sums the outputs addressed to the given address
func (t ChainTransaction) AmountTo(address string) float64 {
	var total float64
	for _, out := range t.Outputs {
		if out.Address == address {
			total += out.Amount
		}
	}
	return total
}
