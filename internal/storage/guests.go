package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wedding-rsvp/internal/models"
)

const guestColumns = `id, first_name, last_name, email, phone, token, family, country,
	invited_to_mairie, invited_to_vin_honneur, invited_to_chabbat, invited_to_houppa,
	email_sent, email_sent_date, sms_sent, sms_sent_date, whatsapp_sent, whatsapp_sent_date,
	total_guests, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanGuest(row scanner) (*models.Guest, error) {
	var (
		g                    models.Guest
		email                sql.NullString
		emailAt, smsAt, waAt sql.NullTime
		total                sql.NullInt64
		family, country      string
		invited              models.EventSet
	)
	err := row.Scan(
		&g.ID, &g.FirstName, &g.LastName, &email, &g.Phone, &g.Token, &family, &country,
		&invited[models.EventMairie], &invited[models.EventVinHonneur],
		&invited[models.EventChabbat], &invited[models.EventHouppa],
		&g.EmailStatus.Sent, &emailAt, &g.SMSStatus.Sent, &smsAt, &g.WAStatus.Sent, &waAt,
		&total, &g.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	g.Email = email.String
	g.Family = models.Family(family)
	g.Country = models.Country(country)
	g.InvitedTo = invited
	g.EmailStatus.SentAt = timePtr(emailAt)
	g.SMSStatus.SentAt = timePtr(smsAt)
	g.WAStatus.SentAt = timePtr(waAt)
	g.TotalGuests = int(total.Int64)
	return &g, nil
}

func (s *Store) queryGuests(ctx context.Context, query string, args ...any) ([]models.Guest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query guests: %w", err)
	}
	defer rows.Close()

	guests := []models.Guest{}
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		guests = append(guests, *g)
	}
	return guests, rows.Err()
}

func (s *Store) queryGuest(ctx context.Context, query string, args ...any) (*models.Guest, error) {
	g, err := scanGuest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load guest: %w", err)
	}
	return g, nil
}

// CreateGuest inserts g and sets its ID. The email is lowercased; an empty
// country defaults to France. Returns ErrConflict when the email or token is taken.
func (s *Store) CreateGuest(ctx context.Context, g *models.Guest) error {
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	if g.Country == "" {
		g.Country = models.CountryFrance
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now()
	}

	query := `INSERT INTO guests (first_name, last_name, email, phone, token, family, country,
		invited_to_mairie, invited_to_vin_honneur, invited_to_chabbat, invited_to_houppa,
		total_guests, created_at)
		VALUES (` + placeholders(1, 13) + `) RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		g.FirstName, g.LastName, nullString(g.Email), g.Phone, g.Token, string(g.Family), string(g.Country),
		g.InvitedTo[models.EventMairie], g.InvitedTo[models.EventVinHonneur],
		g.InvitedTo[models.EventChabbat], g.InvitedTo[models.EventHouppa],
		nullInt(g.TotalGuests), g.CreatedAt,
	).Scan(&g.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: guest %s", ErrConflict, g.FullName())
	}
	if err != nil {
		return fmt.Errorf("failed to insert guest: %w", err)
	}
	return nil
}

// UpdateGuest rewrites the editable fields of g. Send status and token are left alone.
func (s *Store) UpdateGuest(ctx context.Context, g *models.Guest) error {
	g.Email = strings.ToLower(strings.TrimSpace(g.Email))
	if g.Country == "" {
		g.Country = models.CountryFrance
	}

	query := `UPDATE guests SET first_name = $1, last_name = $2, email = $3, phone = $4,
		family = $5, country = $6, invited_to_mairie = $7, invited_to_vin_honneur = $8,
		invited_to_chabbat = $9, invited_to_houppa = $10, total_guests = $11
		WHERE id = $12`

	res, err := s.db.ExecContext(ctx, query,
		g.FirstName, g.LastName, nullString(g.Email), g.Phone, string(g.Family), string(g.Country),
		g.InvitedTo[models.EventMairie], g.InvitedTo[models.EventVinHonneur],
		g.InvitedTo[models.EventChabbat], g.InvitedTo[models.EventHouppa],
		nullInt(g.TotalGuests), g.ID,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: guest %s", ErrConflict, g.FullName())
	}
	if err != nil {
		return fmt.Errorf("failed to update guest: %w", err)
	}
	return expectOne(res)
}

// DeleteGuest removes a guest with its responses and messages
func (s *Store) DeleteGuest(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// children go first so the delete also holds when foreign keys are off
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_responses WHERE guest_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete responses: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE guest_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM guests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete guest: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	return tx.Commit()
}

// GetGuest loads a guest by id
func (s *Store) GetGuest(ctx context.Context, id int64) (*models.Guest, error) {
	return s.queryGuest(ctx, `SELECT `+guestColumns+` FROM guests WHERE id = $1`, id)
}

// GetGuestByToken loads a guest by access token
func (s *Store) GetGuestByToken(ctx context.Context, token string) (*models.Guest, error) {
	return s.queryGuest(ctx, `SELECT `+guestColumns+` FROM guests WHERE token = $1`, token)
}

// FindGuestByEmail looks a guest up by email, case-insensitively
func (s *Store) FindGuestByEmail(ctx context.Context, email string) (*models.Guest, error) {
	return s.queryGuest(ctx, `SELECT `+guestColumns+` FROM guests WHERE LOWER(email) = $1`,
		strings.ToLower(strings.TrimSpace(email)))
}

// FindGuestByName looks a guest up by first and last name, case-insensitively
func (s *Store) FindGuestByName(ctx context.Context, firstName, lastName string) (*models.Guest, error) {
	return s.queryGuest(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE LOWER(first_name) = $1 AND LOWER(last_name) = $2 ORDER BY id LIMIT 1`,
		strings.ToLower(strings.TrimSpace(firstName)), strings.ToLower(strings.TrimSpace(lastName)))
}

// ListGuests returns every guest ordered by last then first name
func (s *Store) ListGuests(ctx context.Context) ([]models.Guest, error) {
	return s.queryGuests(ctx, `SELECT `+guestColumns+` FROM guests ORDER BY last_name, first_name, id`)
}

// ListGuestsByIDs returns the guests among ids that exist, ordered by id
func (s *Store) ListGuestsByIDs(ctx context.Context, ids []int64) ([]models.Guest, error) {
	if len(ids) == 0 {
		return []models.Guest{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + guestColumns + ` FROM guests WHERE id IN (` + placeholders(1, len(ids)) + `) ORDER BY id`
	return s.queryGuests(ctx, query, args...)
}

// ListPendingEmail returns guests with an email address that have not been sent one yet
func (s *Store) ListPendingEmail(ctx context.Context) ([]models.Guest, error) {
	return s.queryGuests(ctx, `SELECT `+guestColumns+` FROM guests
		WHERE NOT email_sent AND email IS NOT NULL AND email <> ''
		ORDER BY id`)
}

// GuestKey is the identity the import deduplicates on
type GuestKey struct {
	Email     string
	FirstName string
	LastName  string
}

// GuestKeys returns the dedup identity of every stored guest
func (s *Store) GuestKeys(ctx context.Context) ([]GuestKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, first_name, last_name FROM guests ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query guest keys: %w", err)
	}
	defer rows.Close()

	var keys []GuestKey
	for rows.Next() {
		var k GuestKey
		var email sql.NullString
		if err := rows.Scan(&email, &k.FirstName, &k.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan guest key: %w", err)
		}
		k.Email = email.String
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// MarkSent flags a guest as notified on channel at the given time
func (s *Store) MarkSent(ctx context.Context, id int64, channel models.Channel, at time.Time) error {
	var column string
	switch channel {
	case models.ChannelEmail:
		column = "email"
	case models.ChannelSMS:
		column = "sms"
	case models.ChannelWhatsApp:
		column = "whatsapp"
	default:
		return fmt.Errorf("unknown channel %q", channel)
	}

	query := fmt.Sprintf(`UPDATE guests SET %[1]s_sent = $1, %[1]s_sent_date = $2 WHERE id = $3`, column)
	res, err := s.db.ExecContext(ctx, query, true, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s sent: %w", channel, err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
