package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"wedding-rsvp/internal/config"
	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/textnorm"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html"))
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt"))
)

// Content renders invitation messages for one wedding
type Content struct {
	Wedding     config.Wedding
	SiteURL     string
	CountryCode string
}

// invitationData feeds every invitation template
type invitationData struct {
	FirstName string
	LastName  string
	Couple    string
	Date      string
	Location  string
	Events    []string
	Link      string
}

// Link returns the personal invitation URL of a guest
func (c Content) Link(g *models.Guest) string {
	return strings.TrimRight(c.SiteURL, "/") + "/invitation/" + g.Token
}

func (c Content) data(g *models.Guest) invitationData {
	d := invitationData{
		FirstName: g.FirstName,
		LastName:  g.LastName,
		Couple:    c.Wedding.Couple(),
		Date:      c.Wedding.Date,
		Location:  c.Wedding.Location,
		Link:      c.Link(g),
	}
	for _, e := range g.InvitedTo.Invited() {
		d.Events = append(d.Events, e.Label())
	}
	return d
}

// Subject is the invitation email subject line
func (c Content) Subject() string {
	return fmt.Sprintf("💍 Invitation au Mariage de %s - %s", c.Wedding.Couple(), c.Wedding.Date)
}

// InvitationEmail renders the invitation email for g
func (c Content) InvitationEmail(g *models.Guest) (Email, error) {
	d := c.data(g)

	var html, text bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&html, "invitation.html", d); err != nil {
		return Email{}, fmt.Errorf("failed to render invitation html: %w", err)
	}
	if err := textTemplates.ExecuteTemplate(&text, "invitation.txt", d); err != nil {
		return Email{}, fmt.Errorf("failed to render invitation text: %w", err)
	}
	return Email{To: g.Email, Subject: c.Subject(), HTML: html.String(), Text: text.String()}, nil
}

// WhatsAppMessage renders the WhatsApp invitation text
func (c Content) WhatsAppMessage(g *models.Guest) (string, error) {
	return c.renderText("whatsapp.txt", g)
}

// SMSMessage renders the short SMS invitation text
func (c Content) SMSMessage(g *models.Guest) (string, error) {
	return c.renderText("sms.txt", g)
}

func (c Content) renderText(name string, g *models.Guest) (string, error) {
	var buf bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&buf, name, c.data(g)); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// WhatsAppLink builds a wa.me deep link, or "" when the phone is unusable
func (c Content) WhatsAppLink(phone, message string) string {
	digits := textnorm.Phone(phone, c.CountryCode)
	if digits == "" {
		return ""
	}
	return "https://wa.me/" + digits + "?text=" + encodeComponent(message)
}

// SMSLink builds an sms: deep link, or "" when the phone is unusable
func (c Content) SMSLink(phone, message string) string {
	digits := textnorm.Phone(phone, c.CountryCode)
	if digits == "" {
		return ""
	}
	return "sms:+" + digits + "?body=" + encodeComponent(message)
}

// encodeComponent escapes like a URI component: spaces become %20, not +
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
