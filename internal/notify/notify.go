// Package notify delivers adopter e-mails.
package notify

import (
	"context"
	"fmt"
	"html"

	"petadopt/internal/model"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// Message is a single rendered e-mail.
type Message struct {
	To        string
	ToName    string
	Subject   string
	PlainText string
	HTML      string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// SendGridNotifier sends mail through the SendGrid v3 API.
type SendGridNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridNotifier(apiKey, fromEmail, fromName string) *SendGridNotifier {
	return &SendGridNotifier{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (n *SendGridNotifier) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.PlainText, msg.HTML)

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	return nil
}

// LogNotifier only logs messages. Used when no SendGrid key is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.log.Info("Email not sent, no provider configured",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// DecisionMessage renders the e-mail telling an adopter how their request
// was decided.
func DecisionMessage(req model.AdoptionRequest, adopter model.User) Message {
	var subject, headline string
	switch req.Status {
	case model.RequestApproved:
		subject = fmt.Sprintf("Sua solicitação para adotar %s foi aprovada", req.AnimalName)
		headline = "Solicitação aprovada"
	default:
		subject = fmt.Sprintf("Atualização da sua solicitação para adotar %s", req.AnimalName)
		headline = "Solicitação não aprovada"
	}

	var response string
	if req.ResponseMessage != nil {
		response = *req.ResponseMessage
	}

	to := adopter.Email
	name := adopter.Name
	if req.PersonalInfo.Email != "" {
		to = req.PersonalInfo.Email
	}
	if req.PersonalInfo.FullName != "" {
		name = req.PersonalInfo.FullName
	}

	plain := fmt.Sprintf("%s\n\nOrganização: %s\nAnimal: %s\n\n%s\n",
		headline, req.OrganizationName, req.AnimalName, response)
	body := fmt.Sprintf(`<html>
	<body>
		<h2>%s</h2>
		<p>Organização: <strong>%s</strong></p>
		<p>Animal: <strong>%s</strong></p>
		<p>%s</p>
	</body>
</html>`,
		html.EscapeString(headline),
		html.EscapeString(req.OrganizationName),
		html.EscapeString(req.AnimalName),
		html.EscapeString(response),
	)

	return Message{To: to, ToName: name, Subject: subject, PlainText: plain, HTML: body}
}
