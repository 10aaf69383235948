package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/ledgermap/internal/domain"
	"github.com/aristath/ledgermap/internal/modules/batch"
	"github.com/aristath/ledgermap/internal/modules/directory"
	"github.com/aristath/ledgermap/internal/modules/features"
	"github.com/aristath/ledgermap/internal/modules/ledger"
	"github.com/aristath/ledgermap/internal/modules/matching"
	"github.com/aristath/ledgermap/internal/modules/patterns"
)

// Handlers implements the transaction, account, rule, and mapping endpoints.
type Handlers struct {
	log          zerolog.Logger
	service      *ledger.Service
	directory    *directory.Directory
	patterns     *patterns.Store
	orchestrator *matching.Orchestrator
	mapper       *batch.Mapper
}

// NewHandlers creates the API handlers.
func NewHandlers(
	log zerolog.Logger,
	service *ledger.Service,
	dir *directory.Directory,
	store *patterns.Store,
	orchestrator *matching.Orchestrator,
	mapper *batch.Mapper,
) *Handlers {
	return &Handlers{
		log:          log.With().Str("component", "handlers").Logger(),
		service:      service,
		directory:    dir,
		patterns:     store,
		orchestrator: orchestrator,
		mapper:       mapper,
	}
}

// HandleIngest accepts a JSON array of raw transactions.
// POST /api/transactions
func (h *Handlers) HandleIngest(w http.ResponseWriter, r *http.Request) {
	var raws []features.RawTransaction
	if err := json.NewDecoder(r.Body).Decode(&raws); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if len(raws) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty transaction list"})
		return
	}

	result, err := h.service.Ingest(raws)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// HandleListTransactions lists transactions, filtered by query parameters.
// GET /api/transactions?status=PENDING&search=rent&limit=50&offset=0
func (h *Handlers) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	filter := ledger.ListFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	}
	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = domain.TransactionStatus(status)
	}

	txs, err := h.service.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactionViews(txs),
		"count":        len(txs),
	})
}

// HandleTransactionStats returns lifecycle counts.
// GET /api/transactions/stats
func (h *Handlers) HandleTransactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleGetTransaction returns a single transaction.
// GET /api/transactions/{id}
func (h *Handlers) HandleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionView(tx))
}

type mapRequest struct {
	AccountID  string  `json:"account_id"`
	MappedBy   string  `json:"mapped_by"`
	Notes      string  `json:"notes"`
	Confidence float64 `json:"confidence"`
}

// HandleMap maps a transaction to an account.
// POST /api/transactions/{id}/map
func (h *Handlers) HandleMap(w http.ResponseWriter, r *http.Request) {
	var req mapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if req.MappedBy == "" {
		req.MappedBy = "api"
	}
	if req.Confidence == 0 {
		// A human mapping is authoritative unless stated otherwise.
		req.Confidence = 1.0
	}

	tx, err := h.service.Map(chi.URLParam(r, "id"), req.AccountID, req.MappedBy, req.Notes, req.Confidence)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionView(tx))
}

// HandleVerify confirms a mapped transaction.
// POST /api/transactions/{id}/verify
func (h *Handlers) HandleVerify(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Verify(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionView(tx))
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// HandleReject rejects a transaction's mapping.
// POST /api/transactions/{id}/reject
func (h *Handlers) HandleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	tx, err := h.service.Reject(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionView(tx))
}

// HandleSuggestion runs the matching pipeline for one transaction without
// changing any state.
// GET /api/transactions/{id}/suggestion
func (h *Handlers) HandleSuggestion(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	match, err := h.orchestrator.Match(tx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleDeleteTransactions deletes every transaction. Requires confirm=true.
// DELETE /api/transactions?confirm=true
func (h *Handlers) HandleDeleteTransactions(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "confirm=true is required to delete all transactions"})
		return
	}

	count, err := h.service.DeleteAll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

// HandleRunMapping runs the batch mapper over the full pending set.
// POST /api/mapping/run
func (h *Handlers) HandleRunMapping(w http.ResponseWriter, r *http.Request) {
	summary, err := h.mapper.Run()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandlePatternStats reports the size of the learned pattern store.
// GET /api/patterns/stats
func (h *Handlers) HandlePatternStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"patterns": h.patterns.Size()})
}

// HandleListAccounts returns the chart of accounts.
// GET /api/accounts?type=EXPENSE
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	var accounts []domain.Account
	if raw := r.URL.Query().Get("type"); raw != "" {
		accountType, err := domain.ParseAccountType(raw)
		if err != nil {
			writeError(w, err)
			return
		}
		accounts = h.directory.ListByType(accountType)
	} else {
		accounts = h.directory.All()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accountViews(accounts),
		"count":    len(accounts),
	})
}

type accountRequest struct {
	ID       string `json:"account_id"`
	Name     string `json:"name"`
	Type     string `json:"account_type"`
	ParentID string `json:"parent_account_id"`
}

// HandleUpsertAccount creates or updates an account.
// POST /api/accounts
func (h *Handlers) HandleUpsertAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}
	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "account_id and name are required"})
		return
	}

	account := domain.Account{
		ID:       req.ID,
		Name:     req.Name,
		Type:     domain.AccountType(req.Type),
		ParentID: req.ParentID,
	}
	if err := h.directory.Add(account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountView(account))
}

// HandleGetAccount returns one account.
// GET /api/accounts/{id}
func (h *Handlers) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.directory.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView(account))
}

// HandleReloadAccounts re-reads the chart of accounts from the database.
// POST /api/accounts/reload
func (h *Handlers) HandleReloadAccounts(w http.ResponseWriter, r *http.Request) {
	if err := h.directory.Reload(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"accounts": h.directory.Size()})
}

// HandleDeleteAccounts deletes every account. Requires confirm=true, and the
// repository refuses while transactions still reference accounts.
// DELETE /api/accounts?confirm=true
func (h *Handlers) HandleDeleteAccounts(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "confirm=true is required to delete all accounts"})
		return
	}

	count, err := h.directory.DeleteAll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": count})
}

// HandleListRules returns the declarative mapping rules.
// GET /api/rules
func (h *Handlers) HandleListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.orchestrator.Rules().Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// HandleAddRule registers a declarative mapping rule.
// POST /api/rules
func (h *Handlers) HandleAddRule(w http.ResponseWriter, r *http.Request) {
	var rule matching.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body: " + err.Error()})
		return
	}

	if _, err := h.directory.Get(rule.TargetAccountID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.orchestrator.Rules().Add(rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if raw := r.URL.Query().Get(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			return v
		}
	}
	return fallback
}
