package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wedding-rsvp/internal/models"
)

// Stats computes the admin dashboard summary
func (s *Store) Stats(ctx context.Context) (*models.Stats, error) {
	st := &models.Stats{Events: make(map[string]models.EventStats, len(models.Events))}

	counts := []struct {
		dest  *int
		query string
	}{
		{&st.TotalGuests, `SELECT COUNT(*) FROM guests`},
		{&st.EmailsSent, `SELECT COUNT(*) FROM guests WHERE email_sent`},
		{&st.SMSSent, `SELECT COUNT(*) FROM guests WHERE sms_sent`},
		{&st.WhatsAppSent, `SELECT COUNT(*) FROM guests WHERE whatsapp_sent`},
		{&st.ResponsesReceived, `SELECT COUNT(DISTINCT guest_id) FROM event_responses`},
		{&st.MessagesReceived, `SELECT COUNT(*) FROM messages`},
		{&st.PublicResponses, `SELECT COUNT(*) FROM public_responses`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to compute stats: %w", err)
		}
	}

	var invited [len(models.Events)]int
	err := s.db.QueryRowContext(ctx, `SELECT
			COALESCE(SUM(CASE WHEN invited_to_mairie THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invited_to_vin_honneur THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invited_to_chabbat THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN invited_to_houppa THEN 1 ELSE 0 END), 0)
		FROM guests`).Scan(
		&invited[models.EventMairie], &invited[models.EventVinHonneur],
		&invited[models.EventChabbat], &invited[models.EventHouppa])
	if err != nil {
		return nil, fmt.Errorf("failed to count invitations: %w", err)
	}
	for _, e := range models.Events {
		st.Events[e.Key()] = models.EventStats{Invited: invited[e]}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT event_name,
			SUM(CASE WHEN will_attend THEN 1 ELSE 0 END),
			SUM(CASE WHEN will_attend THEN 0 ELSE 1 END),
			SUM(plus_one)
		FROM event_responses GROUP BY event_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate responses: %w", err)
	}
	for rows.Next() {
		var name string
		var attending, declined, headcount int
		if err := rows.Scan(&name, &attending, &declined, &headcount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan event stats: %w", err)
		}
		if _, ok := models.ParseEvent(name); !ok {
			continue
		}
		es := st.Events[name]
		es.Attending, es.Declined, es.Headcount = attending, declined, headcount
		st.Events[name] = es
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `SELECT updated_at FROM event_responses ORDER BY updated_at DESC LIMIT 1`).Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load last response: %w", err)
	}
	st.LastResponseAt = timePtr(last)

	return st, nil
}
