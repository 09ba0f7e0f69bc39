package alert

import (
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"conn-guard/internal/model"

	"github.com/sirupsen/logrus"
)

type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// OnlyTypes limits the alert types that are mailed; empty means all
	OnlyTypes []string
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier mails alerts through an SMTP relay. smtp.SendMail upgrades
// the connection with STARTTLS when the server offers it.
type EmailNotifier struct {
	config   EmailConfig
	types    map[string]struct{}
	sendMail sendMailFunc
	logger   *logrus.Logger
}

func NewEmailNotifier(config EmailConfig, logger *logrus.Logger) (*EmailNotifier, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if config.From == "" || len(config.To) == 0 {
		return nil, fmt.Errorf("email from and to are required")
	}
	if config.Port == 0 {
		config.Port = 587
	}

	types := make(map[string]struct{}, len(config.OnlyTypes))
	for _, t := range config.OnlyTypes {
		types[t] = struct{}{}
	}

	return &EmailNotifier{
		config:   config,
		types:    types,
		sendMail: smtp.SendMail,
		logger:   logger,
	}, nil
}

func (en *EmailNotifier) Name() string {
	return "email"
}

func (en *EmailNotifier) SendAlert(alert model.Alert) error {
	if len(en.types) > 0 {
		if _, ok := en.types[alert.Type]; !ok {
			return nil
		}
	}

	var auth smtp.Auth
	if en.config.Username != "" {
		auth = smtp.PlainAuth("", en.config.Username, en.config.Password, en.config.Host)
	}

	addr := net.JoinHostPort(en.config.Host, fmt.Sprintf("%d", en.config.Port))
	if err := en.sendMail(addr, auth, en.config.From, en.config.To, en.buildMessage(alert)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	en.logger.Debugf("Sent e-mail alert for %s", alert.Source)
	return nil
}

const emailSubject = "Nätverksvarning"

// buildMessage keeps the Swedish port alert wording; other alert types send
// their own message as the body
func (en *EmailNotifier) buildMessage(alert model.Alert) []byte {
	body := alert.Message
	if alert.Type == model.DetectionKind_PORT_ANOMALY.String() && alert.Port != nil {
		body = fmt.Sprintf("Misstänkt portaktivitet från IP %s på port %d", alert.Source, *alert.Port)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", en.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(en.config.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", emailSubject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
