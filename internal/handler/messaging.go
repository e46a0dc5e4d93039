package handler

import (
	"net/http"

	"wedding-rsvp/internal/models"
)

type bulkRequest struct {
	GuestIDs []int64 `json:"guestIds"`
}

// GET /api/messaging/status
func (s *Server) messagingStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, "", s.dispatcher.Status(r.Context()))
}

// GET /api/messaging/test
func (s *Server) testEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.TestEmail(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "Email configuration is valid", nil)
}

// POST /api/messaging/send/{guestId}
func (s *Server) sendEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "guestId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.dispatcher.SendEmail(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "Email sent", res)
}

// POST /api/messaging/send-bulk
func (s *Server) sendBulkEmail(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.dispatcher.SendBulkEmail(r.Context(), req.GuestIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "Bulk send finished", res)
}

// POST /api/messaging/preview/{guestId}
func (s *Server) previewEmail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "guestId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.dispatcher.Preview(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "", p)
}

// POST /api/messaging/resend-failed
func (s *Server) resendFailed(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.ResendFailed(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "Resend finished", res)
}

func (s *Server) deepLink(channel models.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "guestId")
		if err != nil {
			s.fail(w, r, err)
			return
		}
		link, err := s.dispatcher.Link(r.Context(), channel, id)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, http.StatusOK, "", link)
	}
}

func (s *Server) deepLinks(channel models.Channel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		res, err := s.dispatcher.Links(r.Context(), channel, req.GuestIDs)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.respond(w, http.StatusOK, "", res)
	}
}

// GET /api/messaging/whatsapp/link/{guestId}
func (s *Server) whatsappLink(w http.ResponseWriter, r *http.Request) {
	s.deepLink(models.ChannelWhatsApp)(w, r)
}

// POST /api/messaging/whatsapp/links-bulk
func (s *Server) whatsappLinks(w http.ResponseWriter, r *http.Request) {
	s.deepLinks(models.ChannelWhatsApp)(w, r)
}

// GET /api/messaging/sms/link/{guestId}
func (s *Server) smsLink(w http.ResponseWriter, r *http.Request) {
	s.deepLink(models.ChannelSMS)(w, r)
}

// POST /api/messaging/sms/links-bulk
func (s *Server) smsLinks(w http.ResponseWriter, r *http.Request) {
	s.deepLinks(models.ChannelSMS)(w, r)
}

// POST /api/messaging/whatsapp/send/{guestId}
func (s *Server) sendWhatsApp(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "guestId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.dispatcher.SendWhatsApp(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "WhatsApp message sent", res)
}

// POST /api/messaging/whatsapp/send-bulk
func (s *Server) sendWhatsAppBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.dispatcher.SendWhatsAppBulk(r.Context(), req.GuestIDs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, "Bulk WhatsApp finished", res)
}
