// Package handler exposes the RSVP, admin and messaging HTTP API.
package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/importer"
	"wedding-rsvp/internal/notify"
	"wedding-rsvp/internal/ratelimit"
	"wedding-rsvp/internal/rsvp"
	"wedding-rsvp/internal/storage"
)

// maxBodySize bounds JSON bodies and uploads
const maxBodySize = 10 << 20

type Config struct {
	AdminPassword   string
	Production      bool
	PublicRateLimit int // per IP per window, 0 disables
	EmailRateLimit  int
	RateWindow      time.Duration // public limiter window, a minute when zero
	EmailRateWindow time.Duration // email limiter window, a minute when zero
}

func windowOrMinute(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Minute
	}
	return d
}

// Server holds the dependencies shared by every handler
type Server struct {
	store      *storage.Store
	recorder   *rsvp.Recorder
	importer   *importer.Reconciler
	dispatcher *notify.Dispatcher
	cfg        Config
	log        zerolog.Logger

	publicLimit *ratelimit.Limiter
	emailLimit  *ratelimit.Limiter
	now         func() time.Time
}

// NewServer wires the API handlers
func NewServer(store *storage.Store, recorder *rsvp.Recorder, imp *importer.Reconciler, dispatcher *notify.Dispatcher, cfg Config, log zerolog.Logger) *Server {
	return &Server{
		store:       store,
		recorder:    recorder,
		importer:    imp,
		dispatcher:  dispatcher,
		cfg:         cfg,
		log:         log,
		publicLimit: ratelimit.New(cfg.PublicRateLimit, windowOrMinute(cfg.RateWindow)),
		emailLimit:  ratelimit.New(cfg.EmailRateLimit, windowOrMinute(cfg.EmailRateWindow)),
		now:         time.Now,
	}
}

// Routes returns the API handler with access logging applied
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	public := s.publicLimit.Middleware(s.rateLimited)
	admin := s.requireAdmin

	mux.HandleFunc("GET /health", s.health)

	// Guest-facing, token based
	mux.Handle("GET /api/guests/{token}", public(http.HandlerFunc(s.getInvitation)))
	mux.Handle("GET /api/guests/{token}/status", public(http.HandlerFunc(s.getInvitationStatus)))
	mux.Handle("POST /api/guests/{token}/response", public(http.HandlerFunc(s.submitResponse)))
	mux.Handle("POST /api/public-response", public(http.HandlerFunc(s.submitPublicResponse)))
	mux.Handle("POST /api/guests/public-response", public(http.HandlerFunc(s.submitPublicResponse)))

	// Admin
	mux.Handle("GET /api/admin/guests", admin(s.listGuests))
	mux.Handle("POST /api/admin/guests", admin(s.createGuest))
	mux.Handle("GET /api/admin/guests/{id}", admin(s.getGuest))
	mux.Handle("PUT /api/admin/guests/{id}", admin(s.updateGuest))
	mux.Handle("DELETE /api/admin/guests/{id}", admin(s.deleteGuest))
	mux.Handle("GET /api/admin/stats", admin(s.stats))
	mux.Handle("GET /api/admin/responses", admin(s.listResponses))
	mux.Handle("GET /api/admin/messages", admin(s.listMessages))
	mux.Handle("GET /api/admin/public-responses", admin(s.listPublicResponses))
	mux.Handle("GET /api/admin/export", admin(s.exportGuests))
	mux.Handle("POST /api/admin/import", admin(s.importGuests))

	// Messaging
	mux.Handle("GET /api/messaging/status", admin(s.messagingStatus))
	mux.Handle("GET /api/messaging/test", admin(s.testEmail))
	mux.Handle("POST /api/messaging/send/{guestId}",
		s.emailLimit.Middleware(s.rateLimited)(admin(s.sendEmail)))
	mux.Handle("POST /api/messaging/send-bulk", admin(s.sendBulkEmail))
	mux.Handle("POST /api/messaging/preview/{guestId}", admin(s.previewEmail))
	mux.Handle("POST /api/messaging/resend-failed", admin(s.resendFailed))
	mux.Handle("GET /api/messaging/whatsapp/link/{guestId}", admin(s.whatsappLink))
	mux.Handle("POST /api/messaging/whatsapp/links-bulk", admin(s.whatsappLinks))
	mux.Handle("POST /api/messaging/whatsapp/send/{guestId}", admin(s.sendWhatsApp))
	mux.Handle("POST /api/messaging/whatsapp/send-bulk", admin(s.sendWhatsAppBulk))
	mux.Handle("GET /api/messaging/sms/link/{guestId}", admin(s.smsLink))
	mux.Handle("POST /api/messaging/sms/links-bulk", admin(s.smsLinks))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.fail(w, r, apperr.NotFound("Route"))
	})

	var h http.Handler = mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", logPath(r.URL.Path)).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "Request-Id")(h)
	h = hlog.RemoteAddrHandler("ip")(h)
	h = hlog.NewHandler(s.log)(h)
	return h
}

// logPath masks the guest token in access log lines
func logPath(p string) string {
	const prefix = "/api/guests/"
	rest, ok := strings.CutPrefix(p, prefix)
	if !ok || rest == "" || rest == "public-response" {
		return p
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return prefix + "{token}" + rest[i:]
	}
	return prefix + "{token}"
}

// RunLimiterCleanup drops stale rate limit entries until ctx is done
func (s *Server) RunLimiterCleanup(ctx context.Context) {
	go s.emailLimit.Run(ctx, 5*time.Minute)
	s.publicLimit.Run(ctx, 5*time.Minute)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.fail(w, r, apperr.Internal("Database unavailable", err))
		return
	}
	s.respond(w, http.StatusOK, "", map[string]any{
		"status": "ok",
		"time":   s.now().UTC().Format(time.RFC3339),
	})
}

// requireAdmin checks the shared admin secret from X-Admin-Password or password
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		given := r.Header.Get("X-Admin-Password")
		if given == "" {
			given = r.Header.Get("password")
		}
		if given == "" {
			s.fail(w, r, apperr.Unauthorized("Admin password required"))
			return
		}
		if s.cfg.AdminPassword == "" ||
			subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.AdminPassword)) != 1 {
			hlog.FromRequest(r).Warn().Msg("Rejected admin password")
			s.fail(w, r, apperr.Unauthorized("Invalid admin password"))
			return
		}
		next(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	hlog.FromRequest(r).Warn().Str("client", ratelimit.ClientIP(r)).Msg("Rate limit exceeded")
	s.fail(w, r, apperr.RateLimited("Too many requests, please try again later"))
}

type envelope struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, message string, data any) {
	s.writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

// fail writes err as an error envelope. Server-side failures are logged and,
// outside production, carry their cause in details.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	body := envelope{Error: "Internal server error"}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Error = ae.Message
		body.Details = ae.Details
	}

	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
		switch {
		case s.cfg.Production && apperr.KindOf(err) == apperr.KindInternal:
			body.Error = "Internal server error"
			body.Details = nil
		case s.cfg.Production:
		case ae == nil:
			body.Details = []string{err.Error()}
		case ae.Err != nil:
			body.Details = append(body.Details, ae.Err.Error())
		}
	}
	s.writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.InvalidInput("Invalid JSON body", err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(fmt.Sprintf("Invalid %s", name))
	}
	return id, nil
}

// storageErr maps storage sentinels to API errors
func storageErr(err error, resource, conflict string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.NotFound(resource)
	case errors.Is(err, storage.ErrConflict):
		return apperr.Conflict(conflict)
	default:
		return apperr.Internal("Database error", err)
	}
}
