package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"

	"wedding-rsvp/internal/models"
)

// EmailAlert mails the couple whenever a guest responds
type EmailAlert struct {
	mailer Mailer
	to     string
}

// NewEmailAlert returns an alert sent to address "to"
func NewEmailAlert(mailer Mailer, to string) *EmailAlert {
	return &EmailAlert{mailer: mailer, to: to}
}

func (a *EmailAlert) Name() string { return "email-alert" }

type alertResponse struct {
	Label      string
	WillAttend bool
	PlusOne    int
}

type alertData struct {
	Name        string
	Email       string
	Phone       string
	TotalGuests int
	Responses   []alertResponse
	Message     string
	Received    string
}

// NotifyResponse renders and sends the alert
func (a *EmailAlert) NotifyResponse(ctx context.Context, n models.ResponseNotice) error {
	email, err := a.render(n)
	if err != nil {
		return err
	}
	return a.mailer.Send(ctx, email)
}

func (a *EmailAlert) render(n models.ResponseNotice) (Email, error) {
	total := n.TotalGuests
	if total < models.MinPartySize {
		total = models.MinPartySize
	}
	d := alertData{
		Name:        n.Guest.FullName(),
		Email:       n.Guest.Email,
		Phone:       n.Guest.Phone,
		TotalGuests: total,
		// stored escaped; the template escapes again
		Message:  html.UnescapeString(n.Message),
		Received: n.At.Local().Format("02/01/2006 à 15:04"),
	}
	for _, r := range n.Responses {
		d.Responses = append(d.Responses, alertResponse{Label: r.Event.Label(), WillAttend: r.WillAttend, PlusOne: r.PlusOne})
	}

	var buf bytes.Buffer
	if err := htmlTemplates.ExecuteTemplate(&buf, "alert.html", d); err != nil {
		return Email{}, fmt.Errorf("failed to render alert: %w", err)
	}
	return Email{
		To:      a.to,
		Subject: "🎊 Nouvelle réponse de " + n.Guest.FullName(),
		HTML:    buf.String(),
	}, nil
}
