package handler

import (
	"net/http"

	"storefront-sync/internal/identity"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type federatedRequest struct {
	IDToken string `json:"idToken"`
}

// handleGetAccount returns the resolved identity.
// GET /account
func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.store.Identity())
}

// POST /account/login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, h.store.Login(r.Context(), req.Email, req.Password))
}

// POST /account/register
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterInput
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeResult(w, h.store.Register(r.Context(), req))
}

// POST /account/logout
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Logout(r.Context()); err != nil {
		// Local state is already cleared; report the provider failure.
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.store.Identity())
}

// handleFederated accepts an ID token from the federated sign-in page.
// POST /account/federated
func (h *Handler) handleFederated(w http.ResponseWriter, r *http.Request) {
	var req federatedRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.writeError(w, err)
		return
	}
	st, err := h.store.SignInFederated(r.Context(), req.IDToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handler) writeResult(w http.ResponseWriter, res identity.Result) {
	if !res.Success {
		h.writeError(w, resultError(res))
		return
	}
	h.writeJSON(w, http.StatusOK, res)
}
