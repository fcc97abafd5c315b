package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/smtp"
	"strings"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SMTPProvider struct {
	cfg Config
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	var msg bytes.Buffer
	writeHeaders(&msg, p.cfg.From, to, subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	return p.sendMail(to, msg.Bytes())
}

func (p *SMTPProvider) SendWithAttachment(ctx context.Context, to []string, subject string, htmlBody string, att Attachment) error {
	content, err := io.ReadAll(att.Content)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}

	const boundary = "listingcraft-mixed-boundary"

	var msg bytes.Buffer
	writeHeaders(&msg, p.cfg.From, to, subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n", boundary))
	msg.WriteString("\r\n")

	msg.WriteString("--" + boundary + "\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	msg.WriteString("\r\n")

	msg.WriteString("--" + boundary + "\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: %s\r\n", att.ContentType))
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n", att.Filename))
	msg.WriteString("\r\n")

	encoded := base64.StdEncoding.EncodeToString(content)
	for len(encoded) > 76 {
		msg.WriteString(encoded[:76] + "\r\n")
		encoded = encoded[76:]
	}
	msg.WriteString(encoded + "\r\n")
	msg.WriteString("--" + boundary + "--\r\n")

	return p.sendMail(to, msg.Bytes())
}

func (p *SMTPProvider) sendMail(to []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%s", p.cfg.Host, p.cfg.Port)
	auth := smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	return smtp.SendMail(addr, auth, p.cfg.From, to, msg)
}

func writeHeaders(msg *bytes.Buffer, from string, to []string, subject string) {
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
}
