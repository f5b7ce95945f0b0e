package domain

import (
	"fmt"
	"html"
	"time"
)

// ContactSubmission is a lead left through the contact form.
type ContactSubmission struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact"`
	Service   string    `json:"service"`
	Message   string    `json:"message,omitempty"`
	Notified  bool      `json:"notified"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationText renders the submission for the sales chat as Telegram
// HTML, escaping visitor input.
func (s *ContactSubmission) NotificationText() string {
	message := html.EscapeString(s.Message)
	if message == "" {
		message = "—"
	}
	return fmt.Sprintf("✨ Новая заявка NeuroExpert\n\n"+
		"👤 Имя: %s\n"+
		"☎️ Контакт: %s\n"+
		"💼 Услуга: %s\n"+
		"✍️ Сообщение: %s",
		html.EscapeString(s.Name), html.EscapeString(s.Contact), html.EscapeString(s.Service), message)
}
