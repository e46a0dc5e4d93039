package rsvp

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

// countingStore records every call that reaches storage
type countingStore struct {
	*storage.Store
	mu    sync.Mutex
	calls int
}

func (c *countingStore) hit() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingStore) GetGuestByToken(ctx context.Context, token string) (*models.Guest, error) {
	c.hit()
	return c.Store.GetGuestByToken(ctx, token)
}

func (c *countingStore) ResponsesForGuest(ctx context.Context, id int64) ([]models.EventResponse, error) {
	c.hit()
	return c.Store.ResponsesForGuest(ctx, id)
}

func (c *countingStore) SaveResponse(ctx context.Context, sub models.ResponseSubmission) error {
	c.hit()
	return c.Store.SaveResponse(ctx, sub)
}

type recordingNotifier struct {
	name string
	err  error

	mu      sync.Mutex
	notices []models.ResponseNotice
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) NotifyResponse(ctx context.Context, notice models.ResponseNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func setup(t *testing.T, notifiers ...Notifier) (*Recorder, *countingStore) {
	t.Helper()
	s, err := storage.Open(context.Background(), "sqlite3", ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	cs := &countingStore{Store: s}
	return NewRecorder(cs, zerolog.Nop(), notifiers...), cs
}

func addGuest(t *testing.T, s *countingStore, events ...models.Event) *models.Guest {
	t.Helper()
	g := &models.Guest{FirstName: "Sarah", LastName: "Cohen", Email: "sarah@example.com", Token: uuid.NewString()}
	for _, e := range events {
		g.InvitedTo.Set(e, true)
	}
	if err := s.CreateGuest(context.Background(), g); err != nil {
		t.Fatalf("Failed to create guest: %v", err)
	}
	return g
}

func intPtr(v int) *int { return &v }

func TestRecord_OnlyInvitedEvents(t *testing.T) {
	rec, s := setup(t)
	ctx := context.Background()
	g := addGuest(t, s, models.EventMairie, models.EventChabbat)

	decisions := models.DecisionsFromWire(map[string]models.WireDecision{
		"mairie":      {Attend: true, PlusOne: intPtr(2)},
		"vin_honneur": {Attend: true},
		"chabbat":     {Attend: false, PlusOne: intPtr(4)},
		"bar_mitzvah": {Attend: true},
	})

	res, err := rec.Record(ctx, g.Token, decisions, 3, "")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if res.ResponsesCount != 2 {
		t.Errorf("Expected 2 accepted decisions, got %d", res.ResponsesCount)
	}
	if res.HasMessage {
		t.Error("Expected no message")
	}

	responses, err := s.ResponsesForGuest(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 2 {
		t.Fatalf("Expected 2 stored responses, got %d: %+v", len(responses), responses)
	}
	byEvent := map[models.Event]models.EventResponse{}
	for _, r := range responses {
		byEvent[r.Event] = r
	}
	if r := byEvent[models.EventMairie]; !r.WillAttend || r.PlusOne != 2 {
		t.Errorf("mairie: expected attend/2, got %+v", r)
	}
	if r := byEvent[models.EventChabbat]; r.WillAttend || r.PlusOne != 0 {
		t.Errorf("chabbat: expected decline/0, got %+v", r)
	}
	if _, ok := byEvent[models.EventVinHonneur]; ok {
		t.Error("vin_honneur must not be stored for a guest not invited to it")
	}

	got, _ := s.GetGuest(ctx, g.ID)
	if got.TotalGuests != 3 {
		t.Errorf("Expected declared total 3 stored, got %d", got.TotalGuests)
	}
}

func TestRecord_InvalidTokenSkipsStorage(t *testing.T) {
	rec, s := setup(t)
	ctx := context.Background()

	_, err := rec.Record(ctx, "not-a-uuid", models.Decisions{}, 1, "")
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Record: expected InvalidInput, got %v", err)
	}
	_, err = rec.Invitation(ctx, "not-a-uuid")
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Invitation: expected InvalidInput, got %v", err)
	}
	_, err = rec.Status(ctx, "not-a-uuid")
	if apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Status: expected InvalidInput, got %v", err)
	}
	if s.calls != 0 {
		t.Errorf("Expected no storage access, got %d calls", s.calls)
	}
}

func TestRecord_UnknownToken(t *testing.T) {
	rec, _ := setup(t)

	_, err := rec.Record(context.Background(), uuid.NewString(), models.Decisions{}, 1, "")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestRecord_Overwrites(t *testing.T) {
	rec, s := setup(t)
	ctx := context.Background()
	g := addGuest(t, s, models.EventHouppa)

	yes := models.DecisionsFromWire(map[string]models.WireDecision{"houppa": {Attend: true, PlusOne: intPtr(5)}})
	no := models.DecisionsFromWire(map[string]models.WireDecision{"houppa": {Attend: false, PlusOne: intPtr(5)}})

	if _, err := rec.Record(ctx, g.Token, yes, 6, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := rec.Record(ctx, g.Token, no, 0, ""); err != nil {
		t.Fatal(err)
	}

	responses, _ := s.ResponsesForGuest(ctx, g.ID)
	if len(responses) != 1 {
		t.Fatalf("Expected one row per event, got %d", len(responses))
	}
	if responses[0].WillAttend || responses[0].PlusOne != 0 {
		t.Errorf("Expected latest decline, got %+v", responses[0])
	}

	got, _ := s.GetGuest(ctx, g.ID)
	if got.TotalGuests != 6 {
		t.Errorf("Expected total untouched by an absent total, got %d", got.TotalGuests)
	}
}

func TestRecord_Message(t *testing.T) {
	rec, s := setup(t)
	ctx := context.Background()
	g := addGuest(t, s, models.EventMairie)

	res, err := rec.Record(ctx, g.Token, models.Decisions{}, 0, "  <b>Mazal tov</b>  ")
	if err != nil {
		t.Fatal(err)
	}
	if !res.HasMessage || res.ResponsesCount != 0 {
		t.Errorf("Unexpected result %+v", res)
	}
	rec.Record(ctx, g.Token, models.Decisions{}, 0, "   ")
	rec.Record(ctx, g.Token, models.Decisions{}, 0, "second")

	msgs, _ := s.MessagesForGuest(ctx, g.ID)
	if len(msgs) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Body != "&lt;b&gt;Mazal tov&lt;/b&gt;" {
		t.Errorf("Expected escaped message, got %q", msgs[0].Body)
	}
}

func TestRecord_Notifies(t *testing.T) {
	ok := &recordingNotifier{name: "email"}
	failing := &recordingNotifier{name: "webhook", err: errors.New("connection refused")}
	rec, s := setup(t, ok, failing, nil)
	g := addGuest(t, s, models.EventMairie)

	decisions := models.DecisionsFromWire(map[string]models.WireDecision{"mairie": {Attend: true}})
	if _, err := rec.Record(context.Background(), g.Token, decisions, 2, "merci"); err != nil {
		t.Fatalf("A failing notifier must not fail the response: %v", err)
	}
	rec.Wait()

	for _, n := range []*recordingNotifier{ok, failing} {
		if len(n.notices) != 1 {
			t.Fatalf("%s: expected 1 notice, got %d", n.name, len(n.notices))
		}
		notice := n.notices[0]
		if notice.Guest.ID != g.ID || notice.TotalGuests != 2 || notice.Message != "merci" {
			t.Errorf("%s: unexpected notice %+v", n.name, notice)
		}
		if len(notice.Responses) != 1 || notice.Responses[0].PlusOne != 1 {
			t.Errorf("%s: unexpected responses %+v", n.name, notice.Responses)
		}
	}
}

func TestAccept_Clamping(t *testing.T) {
	var all models.EventSet
	for _, e := range models.Events {
		all.Set(e, true)
	}

	tests := []struct {
		name     string
		decision models.Decision
		total    int
		want     int
	}{
		{"default plus one", models.Decision{Attend: true}, 3, 1},
		{"zero becomes one", models.Decision{Attend: true, PlusOne: intPtr(0)}, 3, 1},
		{"negative clamps up", models.Decision{Attend: true, PlusOne: intPtr(-4)}, 3, 1},
		{"within range", models.Decision{Attend: true, PlusOne: intPtr(2)}, 3, 2},
		{"above declared total", models.Decision{Attend: true, PlusOne: intPtr(9)}, 3, 3},
		{"absent total means one", models.Decision{Attend: true, PlusOne: intPtr(9)}, 0, 1},
		{"total above twenty", models.Decision{Attend: true, PlusOne: intPtr(50)}, 99, 20},
		{"declining forces zero", models.Decision{Attend: false, PlusOne: intPtr(5)}, 10, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.decision
			var decisions models.Decisions
			decisions[models.EventHouppa] = &d

			got := Accept(all, decisions, tt.total)
			if len(got) != 1 {
				t.Fatalf("Expected one response, got %d", len(got))
			}
			if got[0].PlusOne != tt.want {
				t.Errorf("PlusOne = %d, want %d", got[0].PlusOne, tt.want)
			}
		})
	}
}

func TestAccept_NotInvited(t *testing.T) {
	var invited models.EventSet
	invited.Set(models.EventMairie, true)

	var decisions models.Decisions
	for _, e := range models.Events {
		decisions[e] = &models.Decision{Attend: true}
	}

	got := Accept(invited, decisions, 2)
	if len(got) != 1 || got[0].Event != models.EventMairie {
		t.Errorf("Expected only mairie accepted, got %+v", got)
	}
}

func TestInvitation(t *testing.T) {
	rec, s := setup(t)
	ctx := context.Background()
	g := addGuest(t, s, models.EventMairie, models.EventHouppa)

	inv, err := rec.Invitation(ctx, g.Token)
	if err != nil {
		t.Fatal(err)
	}
	if inv.HasResponded {
		t.Error("Expected no response yet")
	}
	if len(inv.Responses) != len(models.Events) {
		t.Errorf("Expected a default answer per event, got %d", len(inv.Responses))
	}

	decisions := models.DecisionsFromWire(map[string]models.WireDecision{"houppa": {Attend: true, PlusOne: intPtr(2)}})
	rec.Record(ctx, g.Token, decisions, 2, "")

	inv, err = rec.Invitation(ctx, g.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !inv.HasResponded {
		t.Error("Expected hasResponded after recording")
	}
	if a := inv.Responses["houppa"]; !a.WillAttend || a.PlusOne != 2 {
		t.Errorf("Unexpected houppa answer %+v", a)
	}
	if a := inv.Responses["mairie"]; a.WillAttend || a.PlusOne != 0 {
		t.Errorf("Expected default mairie answer, got %+v", a)
	}

	st, err := rec.Status(ctx, g.Token)
	if err != nil {
		t.Fatal(err)
	}
	if !st.HasResponded || st.FirstName != "Sarah" {
		t.Errorf("Unexpected status %+v", st)
	}
}
