// Package mail delivers document review emails through Resend.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/resend/resend-go/v2"
)

// ReviewEmail carries everything needed to notify one recipient that a
// document is waiting for their review and signature.
type ReviewEmail struct {
	SenderName     string
	SenderEmail    string
	RecipientName  string
	RecipientEmail string
	DocumentLink   string
	Message        string
	SignatureLine  string
}

// Client sends review emails from a fixed sender identity.
type Client struct {
	resend      *resend.Client
	fromName    string
	fromAddress string
}

// New builds a mail client.
func New(apiKey, fromName, fromAddress string) *Client {
	return &Client{
		resend:      resend.NewClient(apiKey),
		fromName:    fromName,
		fromAddress: fromAddress,
	}
}

// SendReviewEmail renders and delivers one review email.
func (c *Client) SendReviewEmail(ctx context.Context, email ReviewEmail) error {
	html, err := renderReviewEmail(email)
	if err != nil {
		return fmt.Errorf("render review email: %w", err)
	}

	_, err = c.resend.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromAddress),
		To:      []string{email.RecipientEmail},
		Subject: fmt.Sprintf("%s sent you a document to review and sign", email.SenderName),
		Html:    html,
	})
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

var reviewTemplate = template.Must(template.New("review").Parse(`<!DOCTYPE html>
<html>
<body style="margin: 0; padding: 0; font-family: Arial, sans-serif;">
  <table width="100%" cellpadding="0" cellspacing="0" style="max-width: 600px; margin: 0 auto;">
    <tr>
      <td align="center" style="padding: 20px;">
        <div style="font-size: 32px; color: #260559; font-weight: bold; margin-bottom: 20px;">DocuInsight</div>
        <div style="font-size: 18px; margin-bottom: 10px;">{{.SenderName}} ({{.SenderEmail}}) sent you a document to review and sign.</div>
        <div style="margin-bottom: 20px;">Hello {{.RecipientName}},</div>
        <div style="margin-bottom: 30px;">{{.Message}}</div>
        <a href="{{.DocumentLink}}" style="background-color: #260559; color: white; padding: 14px 28px; text-decoration: none; font-weight: bold;">REVIEW DOCUMENT</a>
        <div style="margin-top: 30px; color: #666;">Best regards,<br>{{.SignatureLine}}</div>
      </td>
    </tr>
  </table>
</body>
</html>`))

func renderReviewEmail(email ReviewEmail) (string, error) {
	var buf bytes.Buffer
	if err := reviewTemplate.Execute(&buf, email); err != nil {
		return "", err
	}
	return buf.String(), nil
}
