// Package importer reconciles spreadsheet rows with the guest list.
package importer

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
	"wedding-rsvp/internal/textnorm"
	"wedding-rsvp/internal/token"
)

// MinNameLength is the minimum length of a first or last name after trimming
const MinNameLength = 2

// firstDataLine is the line of the first row when no lines are recorded
const firstDataLine = 2

// Store is the persistence the importer needs
type Store interface {
	GuestKeys(ctx context.Context) ([]storage.GuestKey, error)
	CreateGuest(ctx context.Context, g *models.Guest) error
}

// Entry is the outcome of one row
type Entry struct {
	Line        int    `json:"line"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Reason      string `json:"reason,omitempty"`
	MatchedLine int    `json:"matchedLine,omitempty"` // earlier row of the same batch
	GuestID     int64  `json:"guestId,omitempty"`
}

// Counts summarises a Result
type Counts struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// Result is the per-row report of an import
type Result struct {
	Counts     Counts  `json:"counts"`
	Imported   []Entry `json:"imported"`
	Duplicates []Entry `json:"duplicates"`
	Errors     []Entry `json:"errors"`
}

// Reconciler imports rows one at a time, skipping guests already known
type Reconciler struct {
	store Store
	log   zerolog.Logger
}

// NewReconciler creates a reconciler
func NewReconciler(store Store, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// candidate is a normalised row
type candidate struct {
	line  int
	guest models.Guest
}

func (c candidate) name() string { return c.guest.FullName() }

// Import processes rows in order, numbering them from line 2.
func (r *Reconciler) Import(ctx context.Context, rows []Row) (*Result, error) {
	return r.ImportSheet(ctx, &Sheet{Rows: rows})
}

// ImportSheet processes the sheet's rows in order. Row-level failures are
// reported in the Result; an error is returned only if the existing guests
// cannot be read or ctx is cancelled.
func (r *Reconciler) ImportSheet(ctx context.Context, sheet *Sheet) (*Result, error) {
	rows := sheet.Rows
	keys, err := r.store.GuestKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing guests: %w", err)
	}
	seen := newIndex(keys)

	res := &Result{Imported: []Entry{}, Duplicates: []Entry{}, Errors: []Entry{}}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		c := normalize(row, sheet.Header, sheet.line(i))
		entry := Entry{Line: c.line, Name: c.name(), Email: c.guest.Email}

		if reason := validateCandidate(c); reason != "" {
			entry.Reason = reason
			res.Errors = append(res.Errors, entry)
			continue
		}

		if reason, line, dup := seen.match(c); dup {
			entry.Reason = reason
			entry.MatchedLine = line
			res.Duplicates = append(res.Duplicates, entry)
			continue
		}

		c.guest.Token = token.New()
		if err := r.store.CreateGuest(ctx, &c.guest); err != nil {
			r.log.Warn().Err(err).Int("line", c.line).Msg("Import row failed")
			entry.Reason = err.Error()
			res.Errors = append(res.Errors, entry)
			continue
		}

		seen.add(c)
		entry.GuestID = c.guest.ID
		res.Imported = append(res.Imported, entry)
	}

	res.Counts = Counts{Imported: len(res.Imported), Duplicates: len(res.Duplicates), Errors: len(res.Errors)}
	r.log.Info().
		Int("rows", len(rows)).
		Int("imported", res.Counts.Imported).
		Int("duplicates", res.Counts.Duplicates).
		Int("errors", res.Counts.Errors).
		Msg("Import finished")
	return res, nil
}

func normalize(row Row, header []string, line int) candidate {
	f := foldRow(row, header)
	g := models.Guest{
		FirstName: f.text(fieldFirstName),
		LastName:  f.text(fieldLastName),
		Email:     textnorm.Email(f.text(fieldEmail)),
		Phone:     f.text(fieldPhone),
		Country:   textnorm.Country(f.text(fieldCountry)),
		InvitedTo: f.invited(),
	}
	if family := f.text(fieldFamily); family != "" {
		g.Family = textnorm.Family(family)
	}
	return candidate{line: line, guest: g}
}

func validateCandidate(c candidate) string {
	switch {
	case c.guest.FirstName == "":
		return "First name is required"
	case utf8.RuneCountInString(c.guest.FirstName) < MinNameLength:
		return fmt.Sprintf("First name too short (min %d characters)", MinNameLength)
	case c.guest.LastName == "":
		return "Last name is required"
	case utf8.RuneCountInString(c.guest.LastName) < MinNameLength:
		return fmt.Sprintf("Last name too short (min %d characters)", MinNameLength)
	}
	if err := validation.Validate(c.guest.Email, is.EmailFormat); err != nil {
		return "Invalid email: " + c.guest.Email
	}
	return ""
}

// index is the dedup state of one import. Values are the batch line that
// introduced the key, 0 for guests already stored.
type index struct {
	emails map[string]int
	names  map[string]int
}

func newIndex(keys []storage.GuestKey) index {
	ix := index{
		emails: make(map[string]int, len(keys)),
		names:  make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		if k.Email != "" {
			ix.emails[strings.ToLower(k.Email)] = 0
		}
		ix.names[nameKey(k.FirstName, k.LastName)] = 0
	}
	return ix
}

func nameKey(first, last string) string {
	return strings.ToLower(strings.TrimSpace(first)) + "\x00" + strings.ToLower(strings.TrimSpace(last))
}

// match reports whether c duplicates a known guest, email first then name
func (ix index) match(c candidate) (reason string, line int, dup bool) {
	if c.guest.Email != "" {
		if line, ok := ix.emails[c.guest.Email]; ok {
			return describe("Email already exists", line), line, true
		}
	}
	if line, ok := ix.names[nameKey(c.guest.FirstName, c.guest.LastName)]; ok {
		return describe("Guest with the same name already exists", line), line, true
	}
	return "", 0, false
}

func (ix index) add(c candidate) {
	if c.guest.Email != "" {
		ix.emails[c.guest.Email] = c.line
	}
	ix.names[nameKey(c.guest.FirstName, c.guest.LastName)] = c.line
}

func describe(reason string, line int) string {
	if line == 0 {
		return reason
	}
	return fmt.Sprintf("%s (line %d)", reason, line)
}
