package storage

import (
	"context"
	"database/sql"
	"fmt"

	"wedding-rsvp/internal/models"
)

// SaveResponse persists one RSVP submission atomically: per-event upserts, the
// declared party size and the optional message.
func (s *Store) SaveResponse(ctx context.Context, sub models.ResponseSubmission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	at := sub.At.UTC()
	for _, r := range sub.Responses {
		_, err := tx.ExecContext(ctx, `INSERT INTO event_responses (guest_id, event_name, will_attend, plus_one, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (guest_id, event_name) DO UPDATE SET
				will_attend = excluded.will_attend,
				plus_one = excluded.plus_one,
				updated_at = excluded.updated_at`,
			sub.GuestID, r.Event.Key(), r.WillAttend, r.PlusOne, at)
		if err != nil {
			return fmt.Errorf("failed to save %s response: %w", r.Event, err)
		}
	}

	if sub.TotalGuests > 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE guests SET total_guests = $1 WHERE id = $2`,
			sub.TotalGuests, sub.GuestID); err != nil {
			return fmt.Errorf("failed to update total guests: %w", err)
		}
	}

	if sub.Message != "" {
		if _, err := tx.ExecContext(ctx, `INSERT INTO messages (guest_id, message, created_at) VALUES ($1, $2, $3)`,
			sub.GuestID, sub.Message, at); err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
	}

	return tx.Commit()
}

// ResponsesForGuest returns a guest's current answers in event order
func (s *Store) ResponsesForGuest(ctx context.Context, guestID int64) ([]models.EventResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guest_id, event_name, will_attend, plus_one, updated_at
		FROM event_responses WHERE guest_id = $1`, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var byEvent [len(models.Events)]*models.EventResponse
	for rows.Next() {
		var r models.EventResponse
		if err := rows.Scan(&r.GuestID, &r.EventName, &r.WillAttend, &r.PlusOne, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		e, ok := models.ParseEvent(r.EventName)
		if !ok {
			s.log.Warn().Str("event", r.EventName).Int64("guest_id", guestID).Msg("Skipping response for unknown event")
			continue
		}
		r.Event = e
		byEvent[e] = &r
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []models.EventResponse{}
	for _, r := range byEvent {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// ResponsesByGuest returns every stored answer grouped by guest id
func (s *Store) ResponsesByGuest(ctx context.Context) (map[int64][]models.EventResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guest_id, event_name, will_attend, plus_one, updated_at
		FROM event_responses ORDER BY guest_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]models.EventResponse)
	for rows.Next() {
		var r models.EventResponse
		if err := rows.Scan(&r.GuestID, &r.EventName, &r.WillAttend, &r.PlusOne, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		e, ok := models.ParseEvent(r.EventName)
		if !ok {
			continue
		}
		r.Event = e
		out[r.GuestID] = append(out[r.GuestID], r)
	}
	return out, rows.Err()
}

// ListResponses returns every event response joined with its guest, newest first
func (s *Store) ListResponses(ctx context.Context) ([]models.ResponseRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT g.first_name, g.last_name, g.email,
			r.event_name, r.will_attend, r.plus_one, r.updated_at
		FROM event_responses r
		JOIN guests g ON g.id = r.guest_id
		ORDER BY r.updated_at DESC, g.last_name, g.first_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	out := []models.ResponseRow{}
	for rows.Next() {
		var r models.ResponseRow
		var email sql.NullString
		if err := rows.Scan(&r.FirstName, &r.LastName, &email, &r.EventName, &r.WillAttend, &r.PlusOne, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		r.Email = email.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// MessagesForGuest returns a guest's messages, oldest first
func (s *Store) MessagesForGuest(ctx context.Context, guestID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, guest_id, message, created_at
		FROM messages WHERE guest_id = $1 ORDER BY created_at, id`, guestID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.GuestID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListMessages returns every message joined with its guest, newest first
func (s *Store) ListMessages(ctx context.Context) ([]models.MessageRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT m.id, m.guest_id, m.message, m.created_at,
			g.first_name, g.last_name, g.email
		FROM messages m
		JOIN guests g ON g.id = m.guest_id
		ORDER BY m.created_at DESC, m.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	out := []models.MessageRow{}
	for rows.Next() {
		var m models.MessageRow
		var email sql.NullString
		if err := rows.Scan(&m.ID, &m.GuestID, &m.Body, &m.CreatedAt, &m.FirstName, &m.LastName, &email); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Email = email.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// GuestDetail loads a guest with its responses and messages
func (s *Store) GuestDetail(ctx context.Context, id int64) (*models.GuestDetail, error) {
	g, err := s.GetGuest(ctx, id)
	if err != nil {
		return nil, err
	}
	responses, err := s.ResponsesForGuest(ctx, id)
	if err != nil {
		return nil, err
	}
	messages, err := s.MessagesForGuest(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.GuestDetail{Guest: *g, Responses: responses, Messages: messages}, nil
}

// CreatePublicResponse stores an open-form RSVP
func (s *Store) CreatePublicResponse(ctx context.Context, p *models.PublicResponse) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	err := s.db.QueryRowContext(ctx, `INSERT INTO public_responses
		(name, guests, mairie, vin_honneur, chabbat, houppa, message, created_at)
		VALUES (`+placeholders(1, 8)+`) RETURNING id`,
		p.Name, p.Guests,
		p.Events[models.EventMairie], p.Events[models.EventVinHonneur],
		p.Events[models.EventChabbat], p.Events[models.EventHouppa],
		p.Message, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to insert public response: %w", err)
	}
	return nil
}

// ListPublicResponses returns open-form RSVPs, newest first
func (s *Store) ListPublicResponses(ctx context.Context) ([]models.PublicResponse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, guests, mairie, vin_honneur, chabbat, houppa, message, created_at
		FROM public_responses ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query public responses: %w", err)
	}
	defer rows.Close()

	out := []models.PublicResponse{}
	for rows.Next() {
		var p models.PublicResponse
		if err := rows.Scan(&p.ID, &p.Name, &p.Guests,
			&p.Events[models.EventMairie], &p.Events[models.EventVinHonneur],
			&p.Events[models.EventChabbat], &p.Events[models.EventHouppa],
			&p.Message, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan public response: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
