package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"wedding-rsvp/internal/apperr"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/storage"
)

// Store is the guest access the dispatcher needs
type Store interface {
	GetGuest(ctx context.Context, id int64) (*models.Guest, error)
	ListGuestsByIDs(ctx context.Context, ids []int64) ([]models.Guest, error)
	ListPendingEmail(ctx context.Context) ([]models.Guest, error)
	MarkSent(ctx context.Context, id int64, channel models.Channel, at time.Time) error
}

// WhatsAppSender delivers WhatsApp messages directly from a linked device
type WhatsAppSender interface {
	SendText(ctx context.Context, phone, text string) error
	IsLoggedIn() bool
}

// Options tune bulk sends
type Options struct {
	Delay     time.Duration // pause between two bulk sends
	BulkLimit int           // max guests per bulk email request
}

// Dispatcher sends invitations and records send status
type Dispatcher struct {
	store    Store
	mailer   Mailer
	whatsapp WhatsAppSender
	content  Content
	opts     Options
	log      zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
}

// NewDispatcher creates a dispatcher. mailer may be nil when SMTP is not configured.
func NewDispatcher(store Store, mailer Mailer, content Content, opts Options, log zerolog.Logger) *Dispatcher {
	if opts.BulkLimit <= 0 {
		opts.BulkLimit = 50
	}
	return &Dispatcher{
		store:   store,
		mailer:  mailer,
		content: content,
		opts:    opts,
		log:     log,
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// SetWhatsApp enables direct WhatsApp delivery
func (d *Dispatcher) SetWhatsApp(s WhatsAppSender) {
	d.whatsapp = s
}

// Content returns the message renderer
func (d *Dispatcher) Content() Content { return d.content }

// ServiceStatus tells which channels are usable
type ServiceStatus struct {
	Email          bool `json:"email"`
	WhatsAppDirect bool `json:"whatsappDirect"`
	WhatsAppLinks  bool `json:"whatsappLinks"`
	SMSLinks       bool `json:"smsLinks"`
}

// SendResult is the outcome for one guest
type SendResult struct {
	GuestID int64  `json:"guestId"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkResult accumulates per-guest outcomes of a bulk send
type BulkResult struct {
	Total   int          `json:"total"`
	Sent    int          `json:"sent"`
	Failed  int          `json:"failed"`
	Skipped int          `json:"skipped"`
	Success []SendResult `json:"success"`
	Errors  []SendResult `json:"errors"`
	Skips   []SendResult `json:"skippedGuests"`
}

func newBulkResult(total int) *BulkResult {
	return &BulkResult{Total: total, Success: []SendResult{}, Errors: []SendResult{}, Skips: []SendResult{}}
}

func (b *BulkResult) ok(r SendResult) {
	b.Success = append(b.Success, r)
	b.Sent++
}

func (b *BulkResult) fail(r SendResult) {
	b.Errors = append(b.Errors, r)
	b.Failed++
}

func (b *BulkResult) skip(r SendResult) {
	b.Skips = append(b.Skips, r)
	b.Skipped++
}

// Preview is a rendered invitation email that was not sent
type Preview struct {
	Email
	InvitationLink string `json:"invitationLink"`
}

// LinkResult is a deep link ready to be opened by the admin
type LinkResult struct {
	GuestID int64  `json:"guestId"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Link    string `json:"link"`
	Message string `json:"message,omitempty"`
}

// LinksResult is the outcome of a bulk link generation
type LinksResult struct {
	Total   int          `json:"total"`
	Links   []LinkResult `json:"links"`
	Skipped []SendResult `json:"skipped"`
}

// Status probes the configured channels
func (d *Dispatcher) Status(ctx context.Context) ServiceStatus {
	st := ServiceStatus{WhatsAppLinks: true, SMSLinks: true}
	if d.mailer != nil {
		st.Email = d.mailer.Verify(ctx) == nil
	}
	if d.whatsapp != nil {
		st.WhatsAppDirect = d.whatsapp.IsLoggedIn()
	}
	return st
}

// TestEmail checks the SMTP configuration
func (d *Dispatcher) TestEmail(ctx context.Context) error {
	if d.mailer == nil {
		return apperr.Transport("Email is not configured", nil)
	}
	if err := d.mailer.Verify(ctx); err != nil {
		return apperr.Transport("Invalid email configuration", err)
	}
	return nil
}

// SendEmail sends the invitation email to one guest
func (d *Dispatcher) SendEmail(ctx context.Context, guestID int64) (*SendResult, error) {
	g, err := d.guest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if g.Email == "" {
		return nil, apperr.InvalidInput("This guest has no email address")
	}
	if err := d.sendEmail(ctx, g); err != nil {
		return nil, apperr.Transport("Failed to send email", err)
	}
	return &SendResult{GuestID: g.ID, Name: g.FullName(), Email: g.Email}, nil
}

// SendBulkEmail sends invitations to the given guests in order, pausing
// between sends. It runs to completion even if ctx is cancelled.
func (d *Dispatcher) SendBulkEmail(ctx context.Context, guestIDs []int64) (*BulkResult, error) {
	if len(guestIDs) == 0 {
		return nil, apperr.InvalidInput("Invalid guest list")
	}
	if len(guestIDs) > d.opts.BulkLimit {
		return nil, apperr.InvalidInput(fmt.Sprintf("At most %d emails per bulk send", d.opts.BulkLimit))
	}
	ctx = context.WithoutCancel(ctx)

	guests, err := d.store.ListGuestsByIDs(ctx, guestIDs)
	if err != nil {
		return nil, apperr.Internal("Failed to load guests", err)
	}
	byID := make(map[int64]*models.Guest, len(guests))
	for i := range guests {
		byID[guests[i].ID] = &guests[i]
	}

	res := newBulkResult(len(guestIDs))
	for _, id := range guestIDs {
		g, ok := byID[id]
		if !ok {
			res.fail(SendResult{GuestID: id, Error: "Guest not found"})
			continue
		}
		if g.Email == "" {
			res.skip(SendResult{GuestID: id, Name: g.FullName(), Reason: "No email address"})
			continue
		}
		d.bulkEmail(ctx, g, res)
		d.sleep(d.opts.Delay)
	}

	d.log.Info().Int("total", res.Total).Int("sent", res.Sent).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("Bulk email finished")
	return res, nil
}

// ResendFailed retries every guest with an address that was never sent an email
func (d *Dispatcher) ResendFailed(ctx context.Context) (*BulkResult, error) {
	ctx = context.WithoutCancel(ctx)

	guests, err := d.store.ListPendingEmail(ctx)
	if err != nil {
		return nil, apperr.Internal("Failed to load guests", err)
	}

	res := newBulkResult(len(guests))
	for i := range guests {
		d.bulkEmail(ctx, &guests[i], res)
		d.sleep(d.opts.Delay)
	}

	d.log.Info().Int("total", res.Total).Int("sent", res.Sent).Int("failed", res.Failed).Msg("Resend finished")
	return res, nil
}

func (d *Dispatcher) bulkEmail(ctx context.Context, g *models.Guest, res *BulkResult) {
	r := SendResult{GuestID: g.ID, Name: g.FullName(), Email: g.Email}
	if err := d.sendEmail(ctx, g); err != nil {
		d.log.Warn().Err(err).Int64("guest_id", g.ID).Msg("Invitation email failed")
		r.Error = err.Error()
		res.fail(r)
		return
	}
	res.ok(r)
}

func (d *Dispatcher) sendEmail(ctx context.Context, g *models.Guest) error {
	if d.mailer == nil {
		return errors.New("email is not configured")
	}
	email, err := d.content.InvitationEmail(g)
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, email); err != nil {
		return err
	}
	d.markSent(ctx, g, models.ChannelEmail)
	return nil
}

// Preview renders the invitation email of a guest without sending it
func (d *Dispatcher) Preview(ctx context.Context, guestID int64) (*Preview, error) {
	g, err := d.guest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	email, err := d.content.InvitationEmail(g)
	if err != nil {
		return nil, apperr.Internal("Failed to render email", err)
	}
	return &Preview{Email: email, InvitationLink: d.content.Link(g)}, nil
}

// Link builds a WhatsApp or SMS deep link for one guest and marks the
// channel as sent
func (d *Dispatcher) Link(ctx context.Context, channel models.Channel, guestID int64) (*LinkResult, error) {
	g, err := d.guest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if g.Phone == "" {
		return nil, apperr.InvalidInput("This guest has no phone number")
	}
	link, err := d.link(ctx, channel, g)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return nil, apperr.InvalidInput("Invalid phone number")
	}
	return link, nil
}

// Links builds deep links for several guests. Guests without a usable phone are skipped.
func (d *Dispatcher) Links(ctx context.Context, channel models.Channel, guestIDs []int64) (*LinksResult, error) {
	if len(guestIDs) == 0 {
		return nil, apperr.InvalidInput("Invalid guest list")
	}
	guests, err := d.store.ListGuestsByIDs(ctx, guestIDs)
	if err != nil {
		return nil, apperr.Internal("Failed to load guests", err)
	}

	res := &LinksResult{Total: len(guestIDs), Links: []LinkResult{}, Skipped: []SendResult{}}
	for i := range guests {
		g := &guests[i]
		if g.Phone == "" {
			res.Skipped = append(res.Skipped, SendResult{GuestID: g.ID, Name: g.FullName(), Reason: "No phone number"})
			continue
		}
		link, err := d.link(ctx, channel, g)
		if err != nil {
			return nil, err
		}
		if link == nil {
			res.Skipped = append(res.Skipped, SendResult{GuestID: g.ID, Name: g.FullName(), Reason: "Invalid phone number"})
			continue
		}
		// the bulk list stays light; the text is in the link
		link.Message = ""
		res.Links = append(res.Links, *link)
	}
	return res, nil
}

// link returns nil when the phone number is unusable
func (d *Dispatcher) link(ctx context.Context, channel models.Channel, g *models.Guest) (*LinkResult, error) {
	var (
		msg, link string
		err       error
	)
	switch channel {
	case models.ChannelWhatsApp:
		msg, err = d.content.WhatsAppMessage(g)
		link = d.content.WhatsAppLink(g.Phone, msg)
	case models.ChannelSMS:
		msg, err = d.content.SMSMessage(g)
		link = d.content.SMSLink(g.Phone, msg)
	default:
		return nil, apperr.InvalidInput(fmt.Sprintf("No deep link for channel %q", channel))
	}
	if err != nil {
		return nil, apperr.Internal("Failed to render message", err)
	}
	if link == "" {
		return nil, nil
	}
	d.markSent(ctx, g, channel)
	return &LinkResult{GuestID: g.ID, Name: g.FullName(), Phone: g.Phone, Link: link, Message: msg}, nil
}

// SendWhatsApp delivers the WhatsApp invitation through the linked device
func (d *Dispatcher) SendWhatsApp(ctx context.Context, guestID int64) (*SendResult, error) {
	if err := d.whatsappReady(); err != nil {
		return nil, err
	}
	g, err := d.guest(ctx, guestID)
	if err != nil {
		return nil, err
	}
	if g.Phone == "" {
		return nil, apperr.InvalidInput("This guest has no phone number")
	}
	if err := d.sendWhatsApp(ctx, g); err != nil {
		return nil, apperr.Transport("Failed to send WhatsApp message", err)
	}
	return &SendResult{GuestID: g.ID, Name: g.FullName(), Phone: g.Phone}, nil
}

// SendWhatsAppBulk delivers WhatsApp invitations in order, pausing between sends
func (d *Dispatcher) SendWhatsAppBulk(ctx context.Context, guestIDs []int64) (*BulkResult, error) {
	if err := d.whatsappReady(); err != nil {
		return nil, err
	}
	if len(guestIDs) == 0 {
		return nil, apperr.InvalidInput("Invalid guest list")
	}
	if len(guestIDs) > d.opts.BulkLimit {
		return nil, apperr.InvalidInput(fmt.Sprintf("At most %d messages per bulk send", d.opts.BulkLimit))
	}
	ctx = context.WithoutCancel(ctx)

	guests, err := d.store.ListGuestsByIDs(ctx, guestIDs)
	if err != nil {
		return nil, apperr.Internal("Failed to load guests", err)
	}
	byID := make(map[int64]*models.Guest, len(guests))
	for i := range guests {
		byID[guests[i].ID] = &guests[i]
	}

	res := newBulkResult(len(guestIDs))
	for _, id := range guestIDs {
		g, ok := byID[id]
		if !ok {
			res.fail(SendResult{GuestID: id, Error: "Guest not found"})
			continue
		}
		if g.Phone == "" {
			res.skip(SendResult{GuestID: id, Name: g.FullName(), Reason: "No phone number"})
			continue
		}
		r := SendResult{GuestID: id, Name: g.FullName(), Phone: g.Phone}
		if err := d.sendWhatsApp(ctx, g); err != nil {
			d.log.Warn().Err(err).Int64("guest_id", id).Msg("WhatsApp invitation failed")
			r.Error = err.Error()
			res.fail(r)
		} else {
			res.ok(r)
		}
		d.sleep(d.opts.Delay)
	}

	d.log.Info().Int("total", res.Total).Int("sent", res.Sent).Int("failed", res.Failed).Msg("Bulk WhatsApp finished")
	return res, nil
}

func (d *Dispatcher) whatsappReady() error {
	if d.whatsapp == nil || !d.whatsapp.IsLoggedIn() {
		return apperr.Transport("WhatsApp is not connected", nil)
	}
	return nil
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, g *models.Guest) error {
	msg, err := d.content.WhatsAppMessage(g)
	if err != nil {
		return err
	}
	if err := d.whatsapp.SendText(ctx, g.Phone, msg); err != nil {
		return err
	}
	d.markSent(ctx, g, models.ChannelWhatsApp)
	return nil
}

func (d *Dispatcher) guest(ctx context.Context, id int64) (*models.Guest, error) {
	g, err := d.store.GetGuest(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperr.NotFound("Guest")
	}
	if err != nil {
		return nil, apperr.Internal("Failed to load guest", err)
	}
	return g, nil
}

// markSent only logs failures: the message already went out
func (d *Dispatcher) markSent(ctx context.Context, g *models.Guest, channel models.Channel) {
	if err := d.store.MarkSent(ctx, g.ID, channel, d.now()); err != nil {
		d.log.Error().Err(err).Int64("guest_id", g.ID).Str("channel", string(channel)).Msg("Failed to record send status")
	}
}
