package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/go-chi/chi/v5"

	"github.com/diagnosis/luma-gate/internal/gate"
	"github.com/diagnosis/luma-gate/internal/http/middleware"
	"github.com/diagnosis/luma-gate/internal/http/response"
	"github.com/diagnosis/luma-gate/internal/mailer"
	"github.com/diagnosis/luma-gate/internal/repo/postgres"
	"github.com/diagnosis/luma-gate/internal/scan"
	"github.com/diagnosis/luma-gate/internal/session"
	"github.com/diagnosis/luma-gate/pkg/auth"
	"github.com/diagnosis/luma-gate/pkg/config"
	"github.com/diagnosis/luma-gate/pkg/logger"
)

// SessionAdmin is the slice of the session manager the admin API needs.
type SessionAdmin interface {
	State() session.State
	AccountEmail() string
	Reset() error
}

type AdminHandler struct {
	Cfg      *config.Config
	Sessions SessionAdmin
	Recent   *gate.RecentBuffer
	Checkins postgres.CheckinRepo
	Scans    chan<- scan.Raw
	Mail     mailer.Service

	started time.Time
}

func NewAdminHandler(cfg *config.Config, sessions SessionAdmin, recent *gate.RecentBuffer, checkins postgres.CheckinRepo, scans chan<- scan.Raw, mail mailer.Service) *AdminHandler {
	return &AdminHandler{
		Cfg:      cfg,
		Sessions: sessions,
		Recent:   recent,
		Checkins: checkins,
		Scans:    scans,
		Mail:     mail,
		started:  time.Now(),
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireOperator(h.Cfg.Auth.JWTSecret))
		r.Get("/status", h.status)
		r.Post("/scans", h.submitScan)
		r.Get("/checkins", h.listCheckins)
		r.Delete("/credentials", h.deleteCredentials)
		r.Post("/alerts/test", h.testAlert)
	})
	return r
}

func (h *AdminHandler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Password == "" {
		response.BadRequest(w, "invalid input")
		return
	}

	if h.Cfg.Auth.AdminPasswordHash == "" {
		response.Unavailable(w, "admin login is not configured")
		return
	}

	match, err := argon2id.ComparePasswordAndHash(in.Password, h.Cfg.Auth.AdminPasswordHash)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to verify admin password", "error", err.Error())
		response.InternalError(w, "failed to verify password")
		return
	}
	if !match {
		response.Unauthorized(w, "invalid password")
		return
	}

	token, err := auth.NewOperatorToken(h.Cfg.Gate.Name, h.Cfg.Auth.JWTSecret, h.Cfg.Auth.AdminTokenTTL)
	if err != nil {
		response.InternalError(w, "failed to issue token")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"token":      token,
		"expires_in": int64(h.Cfg.Auth.AdminTokenTTL.Seconds()),
	})
}

func (h *AdminHandler) status(w http.ResponseWriter, r *http.Request) {
	out := struct {
		Gate          string         `json:"gate"`
		Session       string         `json:"session"`
		Account       string         `json:"account,omitempty"`
		UptimeSeconds int64          `json:"uptime_seconds"`
		Recent        []gate.Outcome `json:"recent"`
	}{
		Gate:          h.Cfg.Gate.Name,
		Session:       string(h.Sessions.State()),
		Account:       h.Sessions.AccountEmail(),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Recent:        h.Recent.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (h *AdminHandler) submitScan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Payload == "" {
		response.BadRequest(w, "invalid input")
		return
	}

	select {
	case h.Scans <- scan.Raw{Payload: in.Payload, Source: scan.SourceAPI}:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "scan queued"})
	default:
		response.Unavailable(w, "scan queue is full")
	}
}

func (h *AdminHandler) listCheckins(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	w.Header().Set("Content-Type", "application/json")

	if h.Checkins != nil {
		recs, err := h.Checkins.ListRecent(r.Context(), limit)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to list check-ins", "error", err.Error())
			response.InternalError(w, "failed to list check-ins")
			return
		}
		_ = json.NewEncoder(w).Encode(recs)
		return
	}

	outs := h.Recent.Snapshot()
	if len(outs) > limit {
		outs = outs[:limit]
	}
	_ = json.NewEncoder(w).Encode(outs)
}

func (h *AdminHandler) deleteCredentials(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Reset(); err != nil {
		logger.ErrorContext(r.Context(), "failed to clear credentials", "error", err.Error())
		response.InternalError(w, "failed to clear credentials")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "stored credentials cleared"})
}

func (h *AdminHandler) testAlert(w http.ResponseWriter, r *http.Request) {
	if h.Cfg.Email.OperatorEmail == "" {
		response.Unavailable(w, "no operator email configured")
		return
	}

	if err := h.Mail.SendTestAlert(h.Cfg.Email.OperatorEmail, h.Cfg.Gate.Name); err != nil {
		logger.ErrorContext(r.Context(), "failed to send test alert", "error", err.Error())
		response.InternalError(w, "failed to send test alert")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "test alert sent"})
}
