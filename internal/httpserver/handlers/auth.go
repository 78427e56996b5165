package handlers

import (
	"net/http"
	"strings"
	"time"

	"market-hunter/internal/httpserver/deps"
	"market-hunter/internal/httpserver/mw"
	"market-hunter/internal/logger"
)

const defaultSessionTTL = 30 * 24 * time.Hour

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    uint      `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c credentials) valid() bool {
	n := len(strings.TrimSpace(c.Username))
	return n >= 3 && n <= 50 && len(c.Password) >= 6 && len(c.Password) <= 72
}

func Register(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decode(w, r, &req); err != nil || !req.valid() {
			badRequest(w, "username must be 3-50 characters and password 6-72")
			return
		}

		user, err := d.Accounts.CreateUser(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		d.Logger.Info("user registered", logger.Uint("user_id", user.ID))
		issueToken(w, r, d, user.ID, http.StatusCreated)
	}
}

func Login(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentials
		if err := decode(w, r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}

		user, err := d.Accounts.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		issueToken(w, r, d, user.ID, http.StatusOK)
	}
}

func Logout(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := d.Accounts.DeleteSession(r.Context(), mw.Token(r)); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func issueToken(w http.ResponseWriter, r *http.Request, d deps.Deps, userID uint, status int) {
	ttl := d.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	session, err := d.Accounts.CreateSession(r.Context(), userID, ttl)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	writeJSON(w, status, tokenResponse{Token: session.Token, UserID: userID, ExpiresAt: session.ExpiresAt})
}

type telegramRequest struct {
	TelegramID int64 `json:"telegram_id"`
}

// LinkTelegram attaches a Telegram chat to the caller so the bot can notify it.
func LinkTelegram(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req telegramRequest
		if err := decode(w, r, &req); err != nil || req.TelegramID == 0 {
			badRequest(w, "telegram_id is required")
			return
		}

		user := mw.User(r.Context())
		if err := d.Accounts.SetTelegramID(r.Context(), user.ID, req.TelegramID); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
