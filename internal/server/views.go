package server

import (
	"time"

	"github.com/aristath/ledgermap/internal/domain"
)

// TransactionView is the JSON shape of a transaction.
type TransactionView struct {
	ID              string  `json:"transaction_id"`
	Date            string  `json:"date"`
	Time            string  `json:"time,omitempty"`
	Description     string  `json:"description"`
	CustomerName    string  `json:"customer_name,omitempty"`
	Amount          float64 `json:"amount"`
	Type            string  `json:"transaction_type"`
	Status          string  `json:"status"`
	MappedAccountID string  `json:"mapped_account_id,omitempty"`
	ConfidenceScore float64 `json:"confidence_score"`
	MappedBy        string  `json:"mapped_by,omitempty"`
	MappedAt        string  `json:"mapped_at,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

// AccountView is the JSON shape of an account.
type AccountView struct {
	ID        string `json:"account_id"`
	Name      string `json:"name"`
	Type      string `json:"account_type"`
	ParentID  string `json:"parent_account_id,omitempty"`
	IsSection bool   `json:"is_section"`
}

func transactionView(t domain.Transaction) TransactionView {
	v := TransactionView{
		ID:              t.ID,
		Date:            t.Date.Format("2006-01-02"),
		Time:            t.Time,
		Description:     t.Description,
		CustomerName:    t.CustomerName,
		Amount:          t.Amount,
		Type:            string(t.Type),
		Status:          string(t.Status),
		MappedAccountID: t.MappedAccountID,
		ConfidenceScore: t.ConfidenceScore,
		MappedBy:        t.MappedBy,
		Notes:           t.Notes,
	}
	if t.MappedAt != nil {
		v.MappedAt = t.MappedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func transactionViews(txs []domain.Transaction) []TransactionView {
	out := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionView(t))
	}
	return out
}

func accountView(a domain.Account) AccountView {
	return AccountView{
		ID:        a.ID,
		Name:      a.Name,
		Type:      string(a.Type),
		ParentID:  a.ParentID,
		IsSection: a.IsSection(),
	}
}

func accountViews(accounts []domain.Account) []AccountView {
	out := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountView(a))
	}
	return out
}
