// Package export writes the guest list with current answers as a CSV file
// that opens cleanly in Excel and LibreOffice.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"wedding-rsvp/internal/models"
)

// bom makes spreadsheet applications read the file as UTF-8
const bom = "\ufeff"

// Source is the storage used by the export
type Source interface {
	ListGuests(ctx context.Context) ([]models.Guest, error)
	ResponsesByGuest(ctx context.Context) (map[int64][]models.EventResponse, error)
}

// Filename returns the suggested download name for an export made at t
func Filename(t time.Time) string {
	return "invites-" + t.Format("2006-01-02") + ".csv"
}

// Header returns the column titles in output order
func Header() []string {
	h := []string{"Prénom", "Nom", "Email", "Téléphone", "Famille", "Pays"}
	for _, e := range models.Events {
		h = append(h, "Invité "+e.Label(), "Réponse "+e.Label(), "Personnes "+e.Label())
	}
	return append(h, "Total personnes", "Email envoyé", "SMS envoyé", "WhatsApp envoyé", "Ajouté le")
}

// Guests writes one semicolon separated row per guest and returns the row count
func Guests(ctx context.Context, src Source, w io.Writer) (int, error) {
	guests, err := src.ListGuests(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list guests: %w", err)
	}
	responses, err := src.ResponsesByGuest(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list responses: %w", err)
	}

	if _, err := io.WriteString(w, bom); err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	if err := cw.Write(Header()); err != nil {
		return 0, err
	}
	for i := range guests {
		if err := cw.Write(record(&guests[i], responses[guests[i].ID])); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(guests), cw.Error()
}

func record(g *models.Guest, responses []models.EventResponse) []string {
	var answers [len(models.Events)]*models.EventResponse
	for i := range responses {
		answers[responses[i].Event] = &responses[i]
	}

	rec := []string{g.FirstName, g.LastName, g.Email, g.Phone, string(g.Family), string(g.Country)}
	for _, e := range models.Events {
		answer, people := "", ""
		if r := answers[e]; r != nil {
			answer = "Non"
			if r.WillAttend {
				answer = "Oui"
			}
			people = strconv.Itoa(r.PlusOne)
		}
		rec = append(rec, yesNo(g.InvitedTo.Has(e)), answer, people)
	}

	total := ""
	if g.TotalGuests > 0 {
		total = strconv.Itoa(g.TotalGuests)
	}
	return append(rec,
		total,
		yesNo(g.EmailStatus.Sent),
		yesNo(g.SMSStatus.Sent),
		yesNo(g.WAStatus.Sent),
		g.CreatedAt.Local().Format("02/01/2006 15:04"),
	)
}

func yesNo(b bool) string {
	if b {
		return "Oui"
	}
	return "Non"
}
