package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const defaultEndpoint = "https://api.mailersend.com/v1/email"

// MailerSendClient delivers transactional email via the MailerSend API.
// Every send fails closed: a false return means the provider did not accept
// the message, whether because of missing credentials, a transport error or
// a non-202 status.
type MailerSendClient struct {
	HTTPClient *http.Client
	APIKey     string
	FromEmail  string
	FromName   string
	Endpoint   string
}

// NewMailerSendClient constructs a client with the provider's 30s timeout.
func NewMailerSendClient(apiKey, fromEmail string) *MailerSendClient {
	if fromEmail == "" {
		fromEmail = "loans@yourcompany.com"
	}
	return &MailerSendClient{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		APIKey:     apiKey,
		FromEmail:  fromEmail,
		FromName:   "Loan Pre-Approval Service",
		Endpoint:   defaultEndpoint,
	}
}

// SendApplicationLink emails the secure application link.
func (c *MailerSendClient) SendApplicationLink(ctx context.Context, email, name, link string, expiresInHours int) bool {
	if expiresInHours <= 0 {
		expiresInHours = 24
	}
	subject := "Your Secure Loan Application Link"
	html := fmt.Sprintf(`<html><body>
<h2>Hi %s,</h2>
<p>Thank you for your interest in our loan pre-approval service.</p>
<p>Please complete your application using this secure link:</p>
<p><a href="%s">Complete Your Application</a></p>
<p>Or copy and paste this link into your browser:</p>
<p>%s</p>
<p><strong>This link will expire in %d hours.</strong></p>
<p>If you did not request this link, please ignore this email.</p>
</body></html>`, name, link, link, expiresInHours)
	text := fmt.Sprintf(`Hi %s,

Thank you for your interest in our loan pre-approval service.

Please complete your application using this secure link:
%s

This link will expire in %d hours.

If you did not request this link, please ignore this email.`, name, link, expiresInHours)
	return c.send(ctx, email, name, subject, html, text)
}

// SendApplicationConfirmation acknowledges a submitted application.
func (c *MailerSendClient) SendApplicationConfirmation(ctx context.Context, email, name, applicationID string) bool {
	subject := "Loan Application Received"
	html := fmt.Sprintf(`<html><body>
<h2>Hi %s,</h2>
<p>Thank you for submitting your loan application.</p>
<p><strong>Application ID:</strong> %s</p>
<p>We will review your application and contact you soon with a decision.</p>
</body></html>`, name, applicationID)
	text := fmt.Sprintf(`Hi %s,

Thank you for submitting your loan application.

Application ID: %s

We will review your application and contact you soon with a decision.`, name, applicationID)
	return c.send(ctx, email, name, subject, html, text)
}

// SendApprovalNotification notifies the applicant of a pre-approval.
func (c *MailerSendClient) SendApprovalNotification(ctx context.Context, email, name string, approvalAmount float64, applicationID string) bool {
	subject := "Loan Pre-Approval Update"
	idLine := ""
	if applicationID != "" {
		idLine = fmt.Sprintf("<p><strong>Application ID:</strong> %s</p>", applicationID)
	}
	html := fmt.Sprintf(`<html><body>
<h2>Hi %s,</h2>
<p>We reviewed your loan application and completed the initial assessment.</p>
<p><strong>Approved Amount:</strong> $%.2f</p>
%s
<p>Our lending team will reach out to confirm a few details and guide you through final approval.</p>
</body></html>`, name, approvalAmount, idLine)
	text := fmt.Sprintf(`Hi %s,

We reviewed your loan application and completed the initial assessment.

Pre-Approved Amount: $%.2f
Application ID: %s

Our lending team will reach out to confirm a few details and guide you through final approval.`, name, approvalAmount, applicationID)
	return c.send(ctx, email, name, subject, html, text)
}

// SendDenialNotification notifies the applicant of a denial.
func (c *MailerSendClient) SendDenialNotification(ctx context.Context, email, name, reason, applicationID string) bool {
	subject := "Loan Application Update"
	reasonLine := ""
	if reason != "" {
		reasonLine = fmt.Sprintf("<p><strong>Reason:</strong> %s</p>", reason)
	}
	idLine := ""
	if applicationID != "" {
		idLine = fmt.Sprintf("<p><strong>Application ID:</strong> %s</p>", applicationID)
	}
	html := fmt.Sprintf(`<html><body>
<h2>Hi %s,</h2>
<p>Thank you for your loan application.</p>
<p>Unfortunately, we are unable to approve your application at this time.</p>
%s%s
<p>We encourage you to apply again in the future as your financial situation may change.</p>
</body></html>`, name, reasonLine, idLine)
	text := fmt.Sprintf(`Hi %s,

Thank you for your loan application.

Unfortunately, we are unable to approve your application at this time.
%s

We encourage you to apply again in the future as your financial situation may change.`, name, reason)
	return c.send(ctx, email, name, subject, html, text)
}

type recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendRequest struct {
	From    recipient   `json:"from"`
	To      []recipient `json:"to"`
	Subject string      `json:"subject"`
	HTML    string      `json:"html"`
	Text    string      `json:"text"`
}

func (c *MailerSendClient) send(ctx context.Context, email, name, subject, html, text string) bool {
	if c.APIKey == "" {
		log.Printf("cannot send email to %s: MAILERSEND_API_KEY not configured", email)
		return false
	}
	body, _ := json.Marshal(sendRequest{
		From:    recipient{Email: c.FromEmail, Name: c.FromName},
		To:      []recipient{{Email: email, Name: name}},
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		log.Printf("mailersend: build request for %s: %v", email, err)
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		log.Printf("mailersend: send to %s: %v", email, err)
		return false
	}
	defer resp.Body.Close()
	// MailerSend signals acceptance with 202 specifically.
	if resp.StatusCode != http.StatusAccepted {
		preview, _ := io.ReadAll(resp.Body)
		log.Printf("mailersend: send to %s failed: status=%d body=%s", email, resp.StatusCode, string(preview))
		return false
	}
	log.Printf("mailersend: email sent to %s", email)
	return true
}
