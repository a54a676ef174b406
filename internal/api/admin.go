package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iris-network/iris/internal/domain"
)

// ─── Account Administration ─────────────────────────────────────────────────
// The full account key appears exactly once, in the creation response. Only
// its hash is stored; afterwards the key is shown masked.

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	acct, key, err := s.accounts.Create()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "account could not be created")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id": acct.ID,
		"key":        key,
		"status":     acct.Status,
		"created_at": acct.CreatedAt,
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "accounts could not be listed")
		return
	}
	out := make([]map[string]any, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, map[string]any{
			"account_id": a.ID,
			"key_prefix": a.KeyPrefix,
			"status":     a.Status,
			"created_at": a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (s *Server) handleDescribeAccount(w http.ResponseWriter, r *http.Request) {
	info, err := s.accounts.Describe(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": info.Account.ID,
		"masked_key": info.MaskedKey,
		"status":     info.Account.Status,
		"nodes":      info.NodeCount,
		"created_at": info.Account.CreatedAt,
	})
}

func (s *Server) handleSuspendAccount(w http.ResponseWriter, r *http.Request) {
	s.accountStatusChange(w, r, s.accounts.Suspend)
}

func (s *Server) handleReactivateAccount(w http.ResponseWriter, r *http.Request) {
	s.accountStatusChange(w, r, s.accounts.Reactivate)
}

func (s *Server) accountStatusChange(w http.ResponseWriter, r *http.Request, change func(string) error) {
	id := chi.URLParam(r, "id")
	if err := change(id); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "status change failed")
		return
	}
	acct, err := s.store.GetAccountByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "account could not be reloaded")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": acct.ID,
		"status":     acct.Status,
	})
}

// ─── Enrollment Tokens ──────────────────────────────────────────────────────

type generateTokenRequest struct {
	Label      string `json:"label,omitempty"`
	TTLMinutes int    `json:"ttl_minutes,omitempty"`
}

func (s *Server) handleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req generateTokenRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	ttl := time.Duration(req.TTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	tok, plaintext, err := s.tokens.Generate(req.Label, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token could not be generated")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"token_id":   tok.ID,
		"token":      plaintext,
		"label":      tok.Label,
		"expires_at": tok.ExpiresAt,
	})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokens, err := s.tokens.List(q.Get("include_used") == "true", q.Get("include_revoked") == "true")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "tokens could not be listed")
		return
	}
	out := make([]map[string]any, 0, len(tokens))
	for _, tok := range tokens {
		entry := map[string]any{
			"token_id":   tok.ID,
			"label":      tok.Label,
			"revoked":    tok.Revoked,
			"expires_at": tok.ExpiresAt,
		}
		if !tok.UsedAt.IsZero() {
			entry["used_at"] = tok.UsedAt
			entry["used_by"] = tok.UsedByNode
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

func (s *Server) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if err := s.tokens.Revoke(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			writeError(w, http.StatusNotFound, "token not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "token could not be revoked")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}
