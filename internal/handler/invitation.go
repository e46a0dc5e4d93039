package handler

import (
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/textnorm"
)

// maxPublicMessageLength caps messages left through the open form
const maxPublicMessageLength = 1000

// GET /api/guests/{token}
func (s *Server) getInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.recorder.Invitation(r.Context(), r.PathValue("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "", inv)
}

// GET /api/guests/{token}/status
func (s *Server) getInvitationStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.recorder.Status(r.Context(), r.PathValue("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "", st)
}

type responseRequest struct {
	Events      map[string]models.WireDecision `json:"events"`
	TotalGuests any                            `json:"totalGuests"`
	Message     string                         `json:"message"`
}

// declaredTotal reads totalGuests as sent by the form, which may be a number
// or a string. Anything unparseable counts as absent.
func (req responseRequest) declaredTotal() int {
	if req.TotalGuests == nil {
		return 0
	}
	n, err := textnorm.Int(req.TotalGuests)
	if err != nil {
		return 0
	}
	return n
}

// POST /api/guests/{token}/response
func (s *Server) submitResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Events == nil {
		s.fail(w, r, apperr.InvalidInput("events is required"))
		return
	}

	res, err := s.recorder.Record(r.Context(), r.PathValue("token"),
		models.DecisionsFromWire(req.Events), req.declaredTotal(), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "Réponse enregistrée avec succès", res)
}

type publicResponseRequest struct {
	Name    string          `json:"name"`
	Guests  any             `json:"guests"`
	Events  models.EventSet `json:"events"`
	Message string          `json:"message"`

	guests int
}

func (req *publicResponseRequest) Validate() error {
	req.Name = strings.TrimSpace(req.Name)
	req.guests, _ = textnorm.Int(req.Guests)

	return validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&req.Guests,
			validation.Required.Error("number of guests is required"),
			validation.By(func(any) error {
				if req.guests < models.MinPartySize || req.guests > models.MaxPartySize {
					return validation.NewError("validation_guests_range", "must be between 1 and 20")
				}
				return nil
			})),
	)
}

// POST /api/public-response
func (s *Server) submitPublicResponse(w http.ResponseWriter, r *http.Request) {
	var req publicResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, validationErr(err))
		return
	}

	p := &models.PublicResponse{
		Name:    req.Name,
		Guests:  req.guests,
		Events:  req.Events,
		Message: textnorm.Message(strings.TrimSpace(req.Message), maxPublicMessageLength),
	}
	if err := s.store.CreatePublicResponse(r.Context(), p); err != nil {
		s.fail(w, r, apperr.Internal("Failed to save response", err))
		return
	}

	s.log.Info().Int64("id", p.ID).Int("guests", p.Guests).Msg("Public response recorded")
	s.respond(w, http.StatusCreated, "Réponse enregistrée avec succès", map[string]int64{"id": p.ID})
}
