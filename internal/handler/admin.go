package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/export"
	"wedding-rsvp/internal/importer"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
	"wedding-rsvp/internal/textnorm"
	"wedding-rsvp/internal/token"
)

// adminGuest is a guest as shown to the couple, with the personal link
type adminGuest struct {
	models.Guest
	Token          string `json:"token"`
	InvitationLink string `json:"invitation_link"`
}

func (s *Server) adminView(g models.Guest) adminGuest {
	return adminGuest{Guest: g, Token: g.Token, InvitationLink: s.dispatcher.Content().Link(&g)}
}

type guestRequest struct {
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Email       string          `json:"email"`
	Phone       string          `json:"phone"`
	Family      string          `json:"family"`
	Country     string          `json:"country"`
	InvitedTo   models.EventSet `json:"invited_to"`
	TotalGuests int             `json:"total_guests"`
}

func (req *guestRequest) Validate() error {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = textnorm.Email(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	return validation.ValidateStruct(req,
		validation.Field(&req.FirstName, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&req.LastName, validation.Required, validation.RuneLength(2, 100)),
		validation.Field(&req.Email, is.EmailFormat),
		validation.Field(&req.Phone, validation.RuneLength(0, 30)),
		validation.Field(&req.Country, validation.In(string(models.CountryFrance), string(models.CountryEtranger))),
		validation.Field(&req.TotalGuests, validation.Min(0), validation.Max(models.MaxPartySize)),
	)
}

func (req *guestRequest) apply(g *models.Guest) {
	g.FirstName = req.FirstName
	g.LastName = req.LastName
	g.Email = req.Email
	g.Phone = req.Phone
	g.Family = textnorm.Family(req.Family)
	g.Country = models.Country(req.Country)
	g.InvitedTo = req.InvitedTo
	g.TotalGuests = req.TotalGuests
}

// validationErr turns ozzo field errors into a sorted details list
func validationErr(err error) error {
	var ve validation.Errors
	if !errors.As(err, &ve) {
		return apperr.InvalidInput("Validation failed", err.Error())
	}
	details := make([]string, 0, len(ve))
	for field, ferr := range ve {
		details = append(details, fmt.Sprintf("%s: %s", field, ferr.Error()))
	}
	sort.Strings(details)
	return apperr.InvalidInput("Validation failed", details...)
}

// GET /api/admin/guests
func (s *Server) listGuests(w http.ResponseWriter, r *http.Request) {
	guests, err := s.store.ListGuests(r.Context())
	if err != nil {
		s.fail(w, r, apperr.Internal("Failed to list guests", err))
		return
	}
	out := make([]adminGuest, 0, len(guests))
	for _, g := range guests {
		out = append(out, s.adminView(g))
	}
	s.respond(w, http.StatusOK, "", out)
}

// POST /api/admin/guests
func (s *Server) createGuest(w http.ResponseWriter, r *http.Request) {
	var req guestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, validationErr(err))
		return
	}
	if err := s.checkDuplicate(r, &req, 0); err != nil {
		s.fail(w, r, err)
		return
	}

	g := &models.Guest{Token: token.New()}
	req.apply(g)
	if err := s.store.CreateGuest(r.Context(), g); err != nil {
		s.fail(w, r, storageErr(err, "Guest", "A guest with this email already exists"))
		return
	}

	s.log.Info().Int64("guest_id", g.ID).Str("name", g.FullName()).Msg("Guest created")
	s.respond(w, http.StatusCreated, "Guest created", s.adminView(*g))
}

// checkDuplicate rejects a name or email already used by another guest
func (s *Server) checkDuplicate(r *http.Request, req *guestRequest, selfID int64) error {
	if req.Email != "" {
		g, err := s.store.FindGuestByEmail(r.Context(), req.Email)
		switch {
		case err == nil && g.ID != selfID:
			return apperr.Conflict("A guest with this email already exists")
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return apperr.Internal("Failed to check duplicates", err)
		}
	}
	g, err := s.store.FindGuestByName(r.Context(), req.FirstName, req.LastName)
	switch {
	case err == nil && g.ID != selfID:
		return apperr.Conflict("A guest with this name already exists")
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return apperr.Internal("Failed to check duplicates", err)
	}
	return nil
}

// GET /api/admin/guests/{id}
func (s *Server) getGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	detail, err := s.store.GuestDetail(r.Context(), id)
	if err != nil {
		s.fail(w, r, storageErr(err, "Guest", ""))
		return
	}
	s.respond(w, http.StatusOK, "", struct {
		adminGuest
		Responses []models.EventResponse `json:"responses"`
		Messages  []models.Message       `json:"messages"`
	}{s.adminView(detail.Guest), detail.Responses, detail.Messages})
}

// PUT /api/admin/guests/{id}
func (s *Server) updateGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req guestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.fail(w, r, validationErr(err))
		return
	}

	g, err := s.store.GetGuest(r.Context(), id)
	if err != nil {
		s.fail(w, r, storageErr(err, "Guest", ""))
		return
	}
	if err := s.checkDuplicate(r, &req, id); err != nil {
		s.fail(w, r, err)
		return
	}

	req.apply(g)
	if err := s.store.UpdateGuest(r.Context(), g); err != nil {
		s.fail(w, r, storageErr(err, "Guest", "A guest with this email already exists"))
		return
	}
	s.respond(w, http.StatusOK, "Guest updated", s.adminView(*g))
}

// DELETE /api/admin/guests/{id}
func (s *Server) deleteGuest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteGuest(r.Context(), id); err != nil {
		s.fail(w, r, storageErr(err, "Guest", ""))
		return
	}
	s.log.Info().Int64("guest_id", id).Msg("Guest deleted")
	s.respond(w, http.StatusOK, "Guest deleted", nil)
}

// GET /api/admin/stats
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.fail(w, r, apperr.Internal("Failed to compute stats", err))
		return
	}
	s.respond(w, http.StatusOK, "", st)
}

// GET /api/admin/responses
func (s *Server) listResponses(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListResponses(r.Context())
	if err != nil {
		s.fail(w, r, apperr.Internal("Failed to list responses", err))
		return
	}
	s.respond(w, http.StatusOK, "", rows)
}

// GET /api/admin/messages
func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListMessages(r.Context())
	if err != nil {
		s.fail(w, r, apperr.Internal("Failed to list messages", err))
		return
	}
	s.respond(w, http.StatusOK, "", rows)
}

// GET /api/admin/public-responses
func (s *Server) listPublicResponses(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListPublicResponses(r.Context())
	if err != nil {
		s.fail(w, r, apperr.Internal("Failed to list public responses", err))
		return
	}
	s.respond(w, http.StatusOK, "", rows)
}

// GET /api/admin/export
func (s *Server) exportGuests(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.Filename(s.now())))

	n, err := export.Guests(r.Context(), s.store, w)
	if err != nil {
		// nothing is written before the source is read
		w.Header().Del("Content-Disposition")
		s.fail(w, r, apperr.Internal("Failed to export guests", err))
		return
	}
	s.log.Info().Int("guests", n).Msg("Guests exported")
}

// POST /api/admin/import accepts a multipart "file" field (xlsx, csv or
// json) or a JSON body {"rows": [...]}
func (s *Server) importGuests(w http.ResponseWriter, r *http.Request) {
	sheet, err := s.importSheet(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if len(sheet.Rows) == 0 {
		s.fail(w, r, apperr.InvalidInput("No rows to import"))
		return
	}

	res, err := s.importer.ImportSheet(r.Context(), sheet)
	if err != nil {
		s.fail(w, r, apperr.Internal("Import failed", err))
		return
	}
	msg := fmt.Sprintf("%d guests imported, %d duplicates, %d errors",
		res.Counts.Imported, res.Counts.Duplicates, res.Counts.Errors)
	s.respond(w, http.StatusOK, msg, res)
}

func (s *Server) importSheet(w http.ResponseWriter, r *http.Request) (*importer.Sheet, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, apperr.InvalidInput("A file is required", err.Error())
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, apperr.InvalidInput("Failed to read upload", err.Error())
		}
		sheet, err := importer.ParseUpload(data, header.Filename)
		if err != nil {
			return nil, apperr.InvalidInput("Could not read the spreadsheet", err.Error())
		}
		return sheet, nil
	}

	var body struct {
		Rows []importer.Row `json:"rows"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		return nil, err
	}
	return &importer.Sheet{Rows: body.Rows}, nil
}
