package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"wedding-rsvp/internal/textnorm"
)

// ErrNotPaired is returned by Connect when no device has been linked yet
var ErrNotPaired = errors.New("whatsapp device is not linked, run whatsapp-login first")

// ErrNotOnWhatsApp is returned when the recipient has no WhatsApp account
var ErrNotOnWhatsApp = errors.New("number is not registered on WhatsApp")

type Config struct {
	DataDir     string
	CountryCode string
}

// Service sends invitations from a linked WhatsApp device
type Service struct {
	client *whatsmeow.Client
	cfg    Config
	log    zerolog.Logger
}

// NewService opens the device store under cfg.DataDir
func NewService(ctx context.Context, cfg Config, log zerolog.Logger) (*Service, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Zerolog(log.With().Str("module", "store").Logger()))
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Zerolog(log.With().Str("module", "client").Logger()))
	s := &Service{client: client, cfg: cfg, log: log}
	client.AddEventHandler(s.eventHandler)
	return s, nil
}

// Paired reports whether a device is already linked
func (s *Service) Paired() bool {
	return s.client.Store.ID != nil
}

// Connect connects an already linked device
func (s *Service) Connect() error {
	if !s.Paired() {
		return ErrNotPaired
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Login links a new device by printing pairing QR codes to out until the
// phone scans one, then stays connected. An already linked device just connects.
func (s *Service) Login(ctx context.Context, out io.Writer) error {
	if s.Paired() {
		return s.Connect()
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			printQR(out, evt.Code)
		case "success":
			fmt.Fprintln(out, "✅ Device linked")
			return nil
		default:
			s.log.Info().Str("event", evt.Event).Msg("Login event")
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("pairing did not complete")
}

func printQR(out io.Writer, code string) {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(out, "QR Code: %s\n", code)
		return
	}
	fmt.Fprintln(out, "\n"+q.ToSmallString(false))
	fmt.Fprintln(out, "📱 Scan the QR code above with WhatsApp:")
	fmt.Fprintln(out, "   1. Open WhatsApp on your phone")
	fmt.Fprintln(out, "   2. Go to Settings > Linked Devices")
	fmt.Fprintln(out, "   3. Tap 'Link a Device'")
	fmt.Fprintln(out)
}

// Close disconnects from WhatsApp
func (s *Service) Close() {
	s.client.Disconnect()
}

// IsLoggedIn reports whether messages can be sent right now
func (s *Service) IsLoggedIn() bool {
	return s.client.IsConnected() && s.client.IsLoggedIn()
}

// RecipientJID builds the user JID for a phone number, adding the default
// country code to local numbers
func RecipientJID(phone, countryCode string) (types.JID, error) {
	digits := textnorm.Phone(phone, countryCode)
	if digits == "" {
		return types.JID{}, fmt.Errorf("invalid phone number %q", phone)
	}
	return types.NewJID(digits, types.DefaultUserServer), nil
}

// SendText sends a plain text message after checking that the number is on WhatsApp
func (s *Service) SendText(ctx context.Context, phone, text string) error {
	jid, err := RecipientJID(phone, s.cfg.CountryCode)
	if err != nil {
		return err
	}

	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + jid.User})
	if err != nil {
		return fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return fmt.Errorf("%w: %s", ErrNotOnWhatsApp, jid.User)
	}
	jid = resp[0].JID

	sent, err := s.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: &text,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", jid.User, err)
	}

	s.log.Debug().Str("jid", jid.String()).Str("id", sent.ID).Msg("Message sent")
	return nil
}

func (s *Service) eventHandler(evt any) {
	switch evt.(type) {
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}
