package models

import "time"

type WalletTransaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      Money     `json:"amount"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Method      string    `json:"method,omitempty"`
}

// Wallet keeps a running balance next to its append-only log. Balance must
// always equal InitialBalance plus credits minus debits.
type Wallet struct {
	InitialBalance Money               `json:"initial_balance"`
	Balance        Money               `json:"balance"`
	PendingBalance Money               `json:"pending_balance"`
	Transactions   []WalletTransaction `json:"transactions"`
}

// Expected replays the log from InitialBalance.
func (w *Wallet) Expected() (balance, pending Money) {
	balance = w.InitialBalance
	for _, tx := range w.Transactions {
		switch tx.Type {
		case TxCredit:
			balance += tx.Amount
		case TxDebit:
			balance -= tx.Amount
			if tx.Status == TxStatusProcessing {
				pending += tx.Amount
			}
		}
	}
	return balance, pending
}

// HasReference reports whether a transaction of the given type already
// carries referenceID.
func (w *Wallet) HasReference(txType, referenceID string) bool {
	if referenceID == "" {
		return false
	}
	for _, tx := range w.Transactions {
		if tx.Type == txType && tx.ReferenceID == referenceID {
			return true
		}
	}
	return false
}
