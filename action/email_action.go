package action

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/relaypoint/relaypoint/config"
)

var _ Action = new(emailAction)

type emailAction struct {
	conf config.SmtpConfig
}

func NewEmailAction(conf config.SmtpConfig) *emailAction {
	return &emailAction{conf: conf}
}

func (a *emailAction) GetName() string {
	return ACTION_TYPE_SEND_EMAIL_SMTP
}

func (a *emailAction) Validate(config map[string]any) error {
	return requireParams(config, "to", "subject")
}

func (a *emailAction) Execute(config map[string]any) (map[string]any, error) {
	if len(a.conf.Host) == 0 {
		return nil, fmt.Errorf("smtp is not configured")
	}
	to, ok := stringParam(config, "to")
	if !ok || len(to) == 0 {
		return nil, fmt.Errorf("email action requires a non-empty \"to\" in config")
	}
	subject, _ := stringParam(config, "subject")
	body, _ := stringParam(config, "body")

	recipients := splitRecipients(to)
	msg := buildMessage(a.conf.From, recipients, subject, body)

	addr := fmt.Sprintf("%s:%d", a.conf.Host, a.conf.Port)
	var auth smtp.Auth
	if len(a.conf.Username) > 0 {
		auth = smtp.PlainAuth("", a.conf.Username, a.conf.Password, a.conf.Host)
	}
	if err := smtp.SendMail(addr, auth, a.conf.From, recipients, msg); err != nil {
		return nil, fmt.Errorf("error sending email %w", err)
	}
	return map[string]any{"recipients": len(recipients)}, nil
}

func splitRecipients(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) > 0 {
			out = append(out, p)
		}
	}
	return out
}

func buildMessage(from string, to []string, subject string, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}
