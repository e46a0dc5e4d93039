package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), "sqlite3", ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createGuest(t *testing.T, s *Store, first, last, email string, events ...models.Event) *models.Guest {
	t.Helper()

	g := &models.Guest{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Token:     uuid.NewString(),
	}
	for _, e := range events {
		g.InvitedTo.Set(e, true)
	}
	if err := s.CreateGuest(context.Background(), g); err != nil {
		t.Fatalf("Failed to create guest: %v", err)
	}
	return g
}

func TestCreateGuest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := createGuest(t, s, "Sarah", "Cohen", "  Sarah@Example.COM ", models.EventMairie, models.EventHouppa)
	if g.ID == 0 {
		t.Fatal("Expected an id to be assigned")
	}

	got, err := s.GetGuestByToken(ctx, g.Token)
	if err != nil {
		t.Fatalf("GetGuestByToken failed: %v", err)
	}
	if got.Email != "sarah@example.com" {
		t.Errorf("Expected lowercased email, got %q", got.Email)
	}
	if got.Country != models.CountryFrance {
		t.Errorf("Expected default country France, got %q", got.Country)
	}
	if !got.InvitedTo.Has(models.EventMairie) || !got.InvitedTo.Has(models.EventHouppa) {
		t.Errorf("Invitation flags not persisted: %+v", got.InvitedTo)
	}
	if got.InvitedTo.Has(models.EventChabbat) {
		t.Error("Chabbat flag should be false")
	}
	if got.TotalGuests != 0 {
		t.Errorf("Expected undeclared total, got %d", got.TotalGuests)
	}
}

func TestCreateGuest_Conflict(t *testing.T) {
	s := setupTestStore(t)

	createGuest(t, s, "Sarah", "Cohen", "sarah@example.com")

	dup := &models.Guest{FirstName: "Other", LastName: "Person", Email: "SARAH@example.com", Token: uuid.NewString()}
	err := s.CreateGuest(context.Background(), dup)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
}

func TestCreateGuest_EmptyEmailsDoNotCollide(t *testing.T) {
	s := setupTestStore(t)

	createGuest(t, s, "Sarah", "Cohen", "")
	createGuest(t, s, "David", "Levy", "")

	guests, err := s.ListGuests(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(guests) != 2 {
		t.Errorf("Expected 2 guests, got %d", len(guests))
	}
}

func TestFindGuest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g := createGuest(t, s, "Sarah", "Cohen", "sarah@example.com")

	byEmail, err := s.FindGuestByEmail(ctx, "SARAH@EXAMPLE.COM")
	if err != nil || byEmail.ID != g.ID {
		t.Errorf("FindGuestByEmail: got %v, %v", byEmail, err)
	}

	byName, err := s.FindGuestByName(ctx, "sarah", "COHEN")
	if err != nil || byName.ID != g.ID {
		t.Errorf("FindGuestByName: got %v, %v", byName, err)
	}

	if _, err := s.FindGuestByName(ctx, "Nobody", "Here"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestUpdateGuest(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g := createGuest(t, s, "Sarah", "Cohen", "sarah@example.com", models.EventMairie)

	g.LastName = "Levy"
	g.Country = models.CountryEtranger
	g.InvitedTo.Set(models.EventChabbat, true)
	g.TotalGuests = 4
	if err := s.UpdateGuest(ctx, g); err != nil {
		t.Fatalf("UpdateGuest failed: %v", err)
	}

	got, err := s.GetGuest(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastName != "Levy" || got.Country != models.CountryEtranger || got.TotalGuests != 4 {
		t.Errorf("Update not persisted: %+v", got)
	}
	if !got.InvitedTo.Has(models.EventChabbat) {
		t.Error("Expected chabbat invitation")
	}
	if got.Token != g.Token {
		t.Error("Token must not change on update")
	}

	missing := &models.Guest{ID: 999, FirstName: "No", LastName: "One"}
	if err := s.UpdateGuest(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestSaveResponse_Upsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g := createGuest(t, s, "Sarah", "Cohen", "", models.EventMairie)

	first := models.ResponseSubmission{
		GuestID:     g.ID,
		Responses:   []models.EventResponse{{Event: models.EventMairie, WillAttend: true, PlusOne: 2}},
		TotalGuests: 3,
		Message:     "Mazal tov",
		At:          time.Now(),
	}
	if err := s.SaveResponse(ctx, first); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	second := models.ResponseSubmission{
		GuestID:   g.ID,
		Responses: []models.EventResponse{{Event: models.EventMairie, WillAttend: false}},
		Message:   "Finalement non",
		At:        time.Now().Add(time.Minute),
	}
	if err := s.SaveResponse(ctx, second); err != nil {
		t.Fatalf("SaveResponse failed: %v", err)
	}

	responses, err := s.ResponsesForGuest(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 1 {
		t.Fatalf("Expected exactly one response row, got %d", len(responses))
	}
	if responses[0].WillAttend || responses[0].PlusOne != 0 {
		t.Errorf("Expected latest answer to win, got %+v", responses[0])
	}
	if responses[0].Event != models.EventMairie {
		t.Errorf("Expected mairie, got %v", responses[0].Event)
	}

	messages, err := s.MessagesForGuest(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Errorf("Expected messages to accumulate, got %d", len(messages))
	}

	got, _ := s.GetGuest(ctx, g.ID)
	if got.TotalGuests != 3 {
		t.Errorf("Expected total 3 to survive a submission without total, got %d", got.TotalGuests)
	}
}

func TestDeleteGuest_Cascades(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	g := createGuest(t, s, "Sarah", "Cohen", "", models.EventHouppa)

	err := s.SaveResponse(ctx, models.ResponseSubmission{
		GuestID:   g.ID,
		Responses: []models.EventResponse{{Event: models.EventHouppa, WillAttend: true, PlusOne: 1}},
		Message:   "hello",
		At:        time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteGuest(ctx, g.ID); err != nil {
		t.Fatalf("DeleteGuest failed: %v", err)
	}
	if _, err := s.GetGuest(ctx, g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected guest gone, got %v", err)
	}

	rows, _ := s.ListResponses(ctx)
	msgs, _ := s.ListMessages(ctx)
	if len(rows) != 0 || len(msgs) != 0 {
		t.Errorf("Expected children deleted, got %d responses and %d messages", len(rows), len(msgs))
	}

	if err := s.DeleteGuest(ctx, g.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMarkSent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	a := createGuest(t, s, "Sarah", "Cohen", "sarah@example.com")
	createGuest(t, s, "David", "Levy", "david@example.com")
	createGuest(t, s, "No", "Email", "")

	pending, err := s.ListPendingEmail(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Fatalf("Expected 2 pending, got %d", len(pending))
	}

	if err := s.MarkSent(ctx, a.ID, models.ChannelEmail, time.Now()); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}
	if err := s.MarkSent(ctx, a.ID, models.ChannelWhatsApp, time.Now()); err != nil {
		t.Fatalf("MarkSent failed: %v", err)
	}

	got, _ := s.GetGuest(ctx, a.ID)
	if !got.EmailStatus.Sent || got.EmailStatus.SentAt == nil {
		t.Errorf("Expected email sent with date, got %+v", got.EmailStatus)
	}
	if !got.WAStatus.Sent {
		t.Error("Expected whatsapp sent")
	}
	if got.SMSStatus.Sent {
		t.Error("SMS should not be marked")
	}

	pending, _ = s.ListPendingEmail(ctx)
	if len(pending) != 1 {
		t.Errorf("Expected 1 pending after send, got %d", len(pending))
	}

	if err := s.MarkSent(ctx, a.ID, models.Channel("fax"), time.Now()); err == nil {
		t.Error("Expected error for unknown channel")
	}
}

func TestListGuestsByIDs(t *testing.T) {
	s := setupTestStore(t)
	a := createGuest(t, s, "Sarah", "Cohen", "")
	createGuest(t, s, "David", "Levy", "")
	c := createGuest(t, s, "Rachel", "Amar", "")

	guests, err := s.ListGuestsByIDs(context.Background(), []int64{c.ID, a.ID, 12345})
	if err != nil {
		t.Fatal(err)
	}
	if len(guests) != 2 || guests[0].ID != a.ID || guests[1].ID != c.ID {
		t.Errorf("Unexpected guests: %+v", guests)
	}
}

func TestStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats on empty store failed: %v", err)
	}
	if empty.TotalGuests != 0 || empty.LastResponseAt != nil {
		t.Errorf("Unexpected empty stats: %+v", empty)
	}

	a := createGuest(t, s, "Sarah", "Cohen", "sarah@example.com", models.EventMairie, models.EventHouppa)
	b := createGuest(t, s, "David", "Levy", "", models.EventHouppa)
	createGuest(t, s, "Rachel", "Amar", "")

	s.MarkSent(ctx, a.ID, models.ChannelEmail, time.Now())
	s.SaveResponse(ctx, models.ResponseSubmission{
		GuestID: a.ID,
		Responses: []models.EventResponse{
			{Event: models.EventMairie, WillAttend: true, PlusOne: 2},
			{Event: models.EventHouppa, WillAttend: true, PlusOne: 3},
		},
		Message: "On sera là",
		At:      time.Now(),
	})
	s.SaveResponse(ctx, models.ResponseSubmission{
		GuestID:   b.ID,
		Responses: []models.EventResponse{{Event: models.EventHouppa, WillAttend: false}},
		At:        time.Now(),
	})
	s.CreatePublicResponse(ctx, &models.PublicResponse{Name: "Cousin Jo", Guests: 2})

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalGuests != 3 || st.EmailsSent != 1 || st.ResponsesReceived != 2 ||
		st.MessagesReceived != 1 || st.PublicResponses != 1 {
		t.Errorf("Unexpected totals: %+v", st)
	}
	houppa := st.Events["houppa"]
	if houppa.Invited != 2 || houppa.Attending != 1 || houppa.Declined != 1 || houppa.Headcount != 3 {
		t.Errorf("Unexpected houppa stats: %+v", houppa)
	}
	if st.Events["chabbat"].Invited != 0 {
		t.Errorf("Unexpected chabbat stats: %+v", st.Events["chabbat"])
	}
	if st.LastResponseAt == nil {
		t.Error("Expected last response time")
	}
}

func TestPublicResponses(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	p := &models.PublicResponse{Name: "Cousin Jo", Guests: 3, Message: "Hâte !"}
	p.Events.Set(models.EventVinHonneur, true)
	if err := s.CreatePublicResponse(ctx, p); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListPublicResponses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "Cousin Jo" || !list[0].Events.Has(models.EventVinHonneur) {
		t.Errorf("Unexpected public responses: %+v", list)
	}
}

func TestSnapshot(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(context.Background(), "sqlite3", filepath.Join(dir, "db", "wedding.db"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	createGuest(t, s, "Sarah", "Cohen", "")

	out := filepath.Join(dir, "backups", "snap.db")
	if err := s.Snapshot(context.Background(), out); err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Errorf("Expected snapshot file, got %v", err)
	}
}
