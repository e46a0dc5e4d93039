// Package rsvp records guest attendance decisions made through their
// personal invitation link.
package rsvp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
	"wedding-rsvp/internal/textnorm"
	"wedding-rsvp/internal/token"
)

// MaxMessageLength caps a guest message before escaping
const MaxMessageLength = 2000

const notifyTimeout = 30 * time.Second

// Store is the persistence the recorder needs
type Store interface {
	GetGuestByToken(ctx context.Context, token string) (*models.Guest, error)
	ResponsesForGuest(ctx context.Context, guestID int64) ([]models.EventResponse, error)
	SaveResponse(ctx context.Context, sub models.ResponseSubmission) error
}

// Notifier is told about every recorded response. Errors are logged only.
type Notifier interface {
	Name() string
	NotifyResponse(ctx context.Context, notice models.ResponseNotice) error
}

// Recorder validates and persists RSVP submissions
type Recorder struct {
	store     Store
	notifiers []Notifier
	log       zerolog.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

// NewRecorder creates a recorder. Nil notifiers are skipped.
func NewRecorder(store Store, log zerolog.Logger, notifiers ...Notifier) *Recorder {
	r := &Recorder{store: store, log: log, now: time.Now}
	for _, n := range notifiers {
		if n != nil {
			r.notifiers = append(r.notifiers, n)
		}
	}
	return r
}

// Record applies a guest's decisions. declaredTotal is the raw party size the
// guest typed; 0 means absent or unparseable.
func (r *Recorder) Record(ctx context.Context, tok string, decisions models.Decisions, declaredTotal int, message string) (*models.RecordResult, error) {
	guest, err := r.resolve(ctx, tok)
	if err != nil {
		return nil, err
	}

	at := r.now().UTC()
	sub := models.ResponseSubmission{
		GuestID:   guest.ID,
		Responses: Accept(guest.InvitedTo, decisions, declaredTotal),
		At:        at,
	}
	for i := range sub.Responses {
		sub.Responses[i].GuestID = guest.ID
		sub.Responses[i].UpdatedAt = at
	}
	if declaredTotal >= models.MinPartySize && declaredTotal <= models.MaxPartySize {
		sub.TotalGuests = declaredTotal
	}
	if msg := strings.TrimSpace(message); msg != "" {
		sub.Message = textnorm.Message(msg, MaxMessageLength)
	}

	if err := r.store.SaveResponse(ctx, sub); err != nil {
		return nil, apperr.Internal("Failed to save response", err)
	}

	r.log.Info().
		Int64("guest_id", guest.ID).
		Int("responses", len(sub.Responses)).
		Bool("message", sub.Message != "").
		Msg("Response recorded")

	total := sub.TotalGuests
	if total == 0 {
		total = guest.TotalGuests
	}
	r.dispatch(ctx, models.ResponseNotice{
		Guest:       *guest,
		Responses:   sub.Responses,
		TotalGuests: total,
		Message:     sub.Message,
		At:          at,
	})

	return &models.RecordResult{ResponsesCount: len(sub.Responses), HasMessage: sub.Message != ""}, nil
}

// Accept turns raw decisions into the responses to persist. Decisions for
// events the guest is not invited to are dropped. Attending plus-one values
// are clamped to [1, party size]; declining forces 0.
func Accept(invited models.EventSet, decisions models.Decisions, declaredTotal int) []models.EventResponse {
	partySize := clamp(declaredTotal, models.MinPartySize, models.MaxPartySize)

	var out []models.EventResponse
	for _, e := range models.Events {
		d := decisions[e]
		if d == nil || !invited.Has(e) {
			continue
		}
		resp := models.EventResponse{Event: e, EventName: e.Key(), WillAttend: d.Attend}
		if d.Attend {
			plusOne := 1
			if d.PlusOne != nil && *d.PlusOne != 0 {
				plusOne = *d.PlusOne
			}
			resp.PlusOne = clamp(plusOne, 1, partySize)
		}
		out = append(out, resp)
	}
	return out
}

// Invitation returns what a guest sees when opening their link
func (r *Recorder) Invitation(ctx context.Context, tok string) (*models.Invitation, error) {
	guest, err := r.resolve(ctx, tok)
	if err != nil {
		return nil, err
	}
	responses, err := r.store.ResponsesForGuest(ctx, guest.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load responses", err)
	}

	inv := &models.Invitation{
		ID:           guest.ID,
		FirstName:    guest.FirstName,
		LastName:     guest.LastName,
		Email:        guest.Email,
		InvitedTo:    guest.InvitedTo,
		Responses:    make(map[string]models.EventAnswer, len(models.Events)),
		TotalGuests:  guest.TotalGuests,
		HasResponded: len(responses) > 0,
	}
	for _, e := range models.Events {
		inv.Responses[e.Key()] = models.EventAnswer{}
	}
	for _, resp := range responses {
		inv.Responses[resp.Event.Key()] = models.EventAnswer{WillAttend: resp.WillAttend, PlusOne: resp.PlusOne}
	}
	return inv, nil
}

// Status reports whether the guest behind a token has answered yet
func (r *Recorder) Status(ctx context.Context, tok string) (*models.InvitationStatus, error) {
	guest, err := r.resolve(ctx, tok)
	if err != nil {
		return nil, err
	}
	responses, err := r.store.ResponsesForGuest(ctx, guest.ID)
	if err != nil {
		return nil, apperr.Internal("Failed to load responses", err)
	}
	return &models.InvitationStatus{HasResponded: len(responses) > 0, FirstName: guest.FirstName}, nil
}

// Wait blocks until every pending notification has finished
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) resolve(ctx context.Context, tok string) (*models.Guest, error) {
	if !token.Valid(tok) {
		return nil, apperr.InvalidInput("Invalid token format")
	}
	guest, err := r.store.GetGuestByToken(ctx, strings.ToLower(tok))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Guest")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load guest", err)
	}
	return guest, nil
}

// dispatch runs every notifier in its own goroutine, detached from the
// request context so a finished request does not cancel delivery.
func (r *Recorder) dispatch(ctx context.Context, notice models.ResponseNotice) {
	base := context.WithoutCancel(ctx)
	for _, n := range r.notifiers {
		r.wg.Add(1)
		go func(n Notifier) {
			defer r.wg.Done()
			log := r.log.With().Str("notifier", n.Name()).Int64("guest_id", notice.Guest.ID).Logger()
			defer func() {
				if p := recover(); p != nil {
					log.Error().Str("panic", fmt.Sprint(p)).Msg("Notifier panicked")
				}
			}()

			nctx, cancel := context.WithTimeout(base, notifyTimeout)
			defer cancel()
			if err := n.NotifyResponse(nctx, notice); err != nil {
				log.Warn().Err(err).Msg("Response notification failed")
				return
			}
			log.Debug().Msg("Response notification sent")
		}(n)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
