package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

type fakeMailer struct {
	mu        sync.Mutex
	sent      []Email
	failFor   string
	verifyErr error
}

func (m *fakeMailer) Send(ctx context.Context, e Email) error {
	if e.To == m.failFor {
		return errors.New("550 mailbox unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, e)
	return nil
}

func (m *fakeMailer) Verify(ctx context.Context) error { return m.verifyErr }

type fakeWhatsApp struct {
	loggedIn bool
	sent     map[string]string
}

func (f *fakeWhatsApp) SendText(ctx context.Context, phone, text string) error {
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[phone] = text
	return nil
}

func (f *fakeWhatsApp) IsLoggedIn() bool { return f.loggedIn }

var testContent = Content{
	Wedding:     config.Wedding{Date: "14 juin 2026", Location: "Paris", BrideName: "Dvora", GroomName: "Nathan"},
	SiteURL:     "https://mariage.example/",
	CountryCode: "33",
}

func setup(t *testing.T, mailer Mailer) (*Dispatcher, *storage.Store) {
	t.Helper()
	s, err := storage.Open(context.Background(), "sqlite3", ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	d := NewDispatcher(s, mailer, testContent, Options{BulkLimit: 3}, zerolog.Nop())
	d.sleep = func(time.Duration) {}
	return d, s
}

func addGuest(t *testing.T, s *storage.Store, first, email, phone string) *models.Guest {
	t.Helper()
	g := &models.Guest{FirstName: first, LastName: "Cohen", Email: email, Phone: phone, Token: uuid.NewString()}
	g.InvitedTo.Set(models.EventHouppa, true)
	if err := s.CreateGuest(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestInvitationEmail(t *testing.T) {
	g := &models.Guest{FirstName: "Sarah", LastName: "<Cohen>", Email: "s@example.com", Token: "tok"}
	g.InvitedTo.Set(models.EventMairie, true)
	g.InvitedTo.Set(models.EventHouppa, true)

	email, err := testContent.InvitationEmail(g)
	if err != nil {
		t.Fatal(err)
	}
	if email.Subject != "💍 Invitation au Mariage de Dvora & Nathan - 14 juin 2026" {
		t.Errorf("Unexpected subject %q", email.Subject)
	}
	for _, want := range []string{"https://mariage.example/invitation/tok", "La Mairie", "Houppa / Soirée", "&lt;Cohen&gt;"} {
		if !strings.Contains(email.HTML, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(email.HTML, "Le Chabbat") {
		t.Error("HTML lists an event the guest is not invited to")
	}
	if !strings.Contains(email.Text, "- La Mairie") {
		t.Errorf("Text missing event list: %s", email.Text)
	}
}

func TestDeepLinks(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		wa    string
		sms   string
	}{
		{"french mobile", "06 12 34 56 78", "https://wa.me/33612345678?text=Bonjour%20%21", "sms:+33612345678?body=Bonjour%20%21"},
		{"international", "+972 54-123-4567", "https://wa.me/972541234567?text=Bonjour%20%21", "sms:+972541234567?body=Bonjour%20%21"},
		{"too short", "1234", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testContent.WhatsAppLink(tt.phone, "Bonjour !"); got != tt.wa {
				t.Errorf("WhatsAppLink = %q, want %q", got, tt.wa)
			}
			if got := testContent.SMSLink(tt.phone, "Bonjour !"); got != tt.sms {
				t.Errorf("SMSLink = %q, want %q", got, tt.sms)
			}
		})
	}
}

func TestSendEmail(t *testing.T) {
	m := &fakeMailer{}
	d, s := setup(t, m)
	ctx := context.Background()
	g := addGuest(t, s, "Sarah", "sarah@example.com", "")
	noEmail := addGuest(t, s, "David", "", "")

	if _, err := d.SendEmail(ctx, g.ID); err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}
	if len(m.sent) != 1 || m.sent[0].To != "sarah@example.com" {
		t.Fatalf("Unexpected sent mail %+v", m.sent)
	}
	got, _ := s.GetGuest(ctx, g.ID)
	if !got.EmailStatus.Sent {
		t.Error("Expected email marked sent")
	}

	if _, err := d.SendEmail(ctx, noEmail.ID); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Expected InvalidInput without address, got %v", err)
	}
	if _, err := d.SendEmail(ctx, 999); apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestSendEmail_TransportFailure(t *testing.T) {
	m := &fakeMailer{failFor: "sarah@example.com"}
	d, s := setup(t, m)
	g := addGuest(t, s, "Sarah", "sarah@example.com", "")

	_, err := d.SendEmail(context.Background(), g.ID)
	if apperr.KindOf(err) != apperr.KindTransport {
		t.Fatalf("Expected Transport error, got %v", err)
	}
	got, _ := s.GetGuest(context.Background(), g.ID)
	if got.EmailStatus.Sent {
		t.Error("A failed send must not be marked sent")
	}
}

func TestSendBulkEmail(t *testing.T) {
	m := &fakeMailer{failFor: "bad@example.com"}
	d, s := setup(t, m)
	ok := addGuest(t, s, "Sarah", "sarah@example.com", "")
	bad := addGuest(t, s, "Bad", "bad@example.com", "")
	none := addGuest(t, s, "None", "", "")

	var pauses int
	d.sleep = func(time.Duration) { pauses++ }

	res, err := d.SendBulkEmail(context.Background(), []int64{ok.ID, bad.ID, none.ID})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Sent != 1 || res.Failed != 1 || res.Skipped != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	if pauses != 2 {
		t.Errorf("Expected a pause after each attempted send, got %d", pauses)
	}

	if _, err := d.SendBulkEmail(context.Background(), []int64{1, 2, 3, 4}); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Expected bulk limit error, got %v", err)
	}
	if _, err := d.SendBulkEmail(context.Background(), nil); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Expected empty list error, got %v", err)
	}

	missing, _ := d.SendBulkEmail(context.Background(), []int64{999})
	if missing.Failed != 1 || missing.Errors[0].Error != "Guest not found" {
		t.Errorf("Unexpected result for unknown guest %+v", missing)
	}
}

func TestResendFailed(t *testing.T) {
	m := &fakeMailer{}
	d, s := setup(t, m)
	ctx := context.Background()
	a := addGuest(t, s, "Sarah", "sarah@example.com", "")
	addGuest(t, s, "David", "david@example.com", "")
	s.MarkSent(ctx, a.ID, models.ChannelEmail, time.Now())

	res, err := d.ResendFailed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Sent != 1 || m.sent[0].To != "david@example.com" {
		t.Errorf("Unexpected resend %+v", res)
	}
}

func TestLinks(t *testing.T) {
	d, s := setup(t, nil)
	ctx := context.Background()
	g := addGuest(t, s, "Sarah", "", "06 12 34 56 78")
	noPhone := addGuest(t, s, "David", "", "")
	badPhone := addGuest(t, s, "Rachel", "", "12")

	link, err := d.Link(ctx, models.ChannelWhatsApp, g.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(link.Link, "https://wa.me/33612345678?text=") {
		t.Errorf("Unexpected link %q", link.Link)
	}
	if !strings.Contains(link.Message, "https://mariage.example/invitation/"+g.Token) {
		t.Errorf("Message lacks invitation link: %q", link.Message)
	}
	got, _ := s.GetGuest(ctx, g.ID)
	if !got.WAStatus.Sent {
		t.Error("Expected whatsapp marked sent")
	}

	if _, err := d.Link(ctx, models.ChannelSMS, noPhone.ID); apperr.KindOf(err) != apperr.KindInvalidInput {
		t.Errorf("Expected InvalidInput, got %v", err)
	}

	res, err := d.Links(ctx, models.ChannelSMS, []int64{g.ID, noPhone.ID, badPhone.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Links) != 1 || len(res.Skipped) != 2 {
		t.Errorf("Unexpected bulk links %+v", res)
	}
	if !strings.HasPrefix(res.Links[0].Link, "sms:+33612345678?body=") {
		t.Errorf("Unexpected sms link %q", res.Links[0].Link)
	}
}

func TestSendWhatsApp(t *testing.T) {
	d, s := setup(t, nil)
	ctx := context.Background()
	g := addGuest(t, s, "Sarah", "", "06 12 34 56 78")

	if _, err := d.SendWhatsApp(ctx, g.ID); apperr.KindOf(err) != apperr.KindTransport {
		t.Errorf("Expected Transport error without a linked device, got %v", err)
	}

	wa := &fakeWhatsApp{loggedIn: true}
	d.SetWhatsApp(wa)
	if _, err := d.SendWhatsApp(ctx, g.ID); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(wa.sent["06 12 34 56 78"], "Bonjour Sarah") {
		t.Errorf("Unexpected message %+v", wa.sent)
	}
	if !d.Status(ctx).WhatsAppDirect {
		t.Error("Expected direct WhatsApp available")
	}
}

func TestEmailAlert(t *testing.T) {
	m := &fakeMailer{}
	alert := NewEmailAlert(m, "couple@example.com")

	notice := models.ResponseNotice{
		Guest:       models.Guest{FirstName: "Sarah", LastName: "Cohen"},
		Responses:   []models.EventResponse{{Event: models.EventHouppa, WillAttend: true, PlusOne: 2}, {Event: models.EventMairie}},
		TotalGuests: 2,
		Message:     "Vive les mari&#39;s",
		At:          time.Now(),
	}
	if err := alert.NotifyResponse(context.Background(), notice); err != nil {
		t.Fatal(err)
	}
	if len(m.sent) != 1 {
		t.Fatal("Expected one alert")
	}
	e := m.sent[0]
	if e.To != "couple@example.com" || e.Subject != "🎊 Nouvelle réponse de Sarah Cohen" {
		t.Errorf("Unexpected alert %+v", e)
	}
	for _, want := range []string{"Houppa / Soirée", "Présent (2 personnes)", "Absent", "Non renseigné"} {
		if !strings.Contains(e.HTML, want) {
			t.Errorf("Alert missing %q", want)
		}
	}
}

func TestWebhook(t *testing.T) {
	var (
		attempts  atomic.Int32
		mu        sync.Mutex
		body      []byte
		signature string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		mu.Lock()
		body, _ = io.ReadAll(r.Body)
		signature = r.Header.Get("X-Webhook-Signature")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "s3cret", zerolog.Nop())
	wh.backoff = time.Millisecond

	notice := models.ResponseNotice{
		Guest: models.Guest{FirstName: "Sarah", LastName: "Cohen", Family: models.FamilyIbgui},
		Responses: []models.EventResponse{
			{Event: models.EventMairie, WillAttend: true, PlusOne: 3},
			{Event: models.EventChabbat, WillAttend: false},
		},
		TotalGuests: 3,
		At:          time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := wh.NotifyResponse(context.Background(), notice); err != nil {
		t.Fatalf("Expected retry to succeed: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if signature != Sign("s3cret", body) {
		t.Error("Signature does not match body")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"type":            "invitation_response",
		"prenom":          "Sarah",
		"famille":         "Ibgui",
		"mairie":          "Oui (3)",
		"chabbat":         "Non",
		"houppa":          "",
		"total_personnes": float64(3),
		"timestamp":       "2026-03-01T10:00:00Z",
	}
	for k, v := range want {
		if payload[k] != v {
			t.Errorf("payload[%q] = %v, want %v", k, payload[k], v)
		}
	}
}

func TestWebhook_ClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "", zerolog.Nop())
	wh.backoff = time.Millisecond

	if err := wh.NotifyResponse(context.Background(), models.ResponseNotice{At: time.Now()}); err == nil {
		t.Error("Expected error for 400")
	}
	if attempts.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", attempts.Load())
	}
}
