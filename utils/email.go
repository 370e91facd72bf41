// utils/email.go
package utils

import (
	"fmt"
	"os"

	"chowdash/models"

	"github.com/keighl/postmark"
)

// EmailService handles sending emails using Postmark
type EmailService struct {
	client *postmark.Client
}

// NewEmailService initializes and returns a new EmailService instance
func NewEmailService() *EmailService {
	apiToken := os.Getenv("POSTMARK_API_TOKEN")
	if apiToken == "" {
		panic("POSTMARK_API_TOKEN is not set in environment variables")
	}
	client := postmark.NewClient(apiToken, "")
	return &EmailService{
		client: client,
	}
}

// SendEmail sends a basic email to the specified recipient
func (es *EmailService) SendEmail(toEmail, subject, htmlContent string) error {
	_, err := es.client.SendEmail(postmark.Email{
		From:     os.Getenv("EMAIL_SENDER"),
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlContent,
		TextBody: htmlContent,
	})

	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// SendVerificationEmail sends an email verification link to the customer
func (es *EmailService) SendVerificationEmail(toEmail, token string) error {
	subject := "Verify Your Email"
	verificationLink := fmt.Sprintf("http://localhost:%s/verify-email?token=%s", os.Getenv("PORT"), token)
	htmlContent := fmt.Sprintf(
		"<strong>Please verify your email by clicking on the following link:</strong> <a href=\"%s\">Verify Email</a>",
		verificationLink,
	)

	return es.SendEmail(toEmail, subject, htmlContent)
}

// SendPaymentConfirmedEmail tells the customer their transfer was matched
func (es *EmailService) SendPaymentConfirmedEmail(toEmail string, order models.Order) error {
	subject := "Payment Confirmed"
	htmlContent := fmt.Sprintf(
		"<strong>Dear Customer,</strong><br><br>We received your transfer of <strong>NGN %d</strong> for order %s. Your food is being prepared!<br><br>Thank you for ordering with ChowDash.",
		order.TotalAmount,
		order.ID.Hex(),
	)

	return es.SendEmail(toEmail, subject, htmlContent)
}

// SendRefundNoticeEmail tells the customer their transfer arrived with the
// wrong amount and will be refunded
func (es *EmailService) SendRefundNoticeEmail(toEmail string, order models.Order) error {
	subject := "Payment Amount Mismatch"
	htmlContent := fmt.Sprintf(
		"<strong>Dear Customer,</strong><br><br>We received a transfer for order %s, but the amount did not match the expected <strong>NGN %d</strong>. The money will be refunded to your account within 24 hours.",
		order.ID.Hex(),
		order.TotalAmount,
	)

	return es.SendEmail(toEmail, subject, htmlContent)
}

// SendManualReviewEmail tells the customer their payment is being checked by hand
func (es *EmailService) SendManualReviewEmail(toEmail string, order models.Order) error {
	subject := "Payment Under Review"
	htmlContent := fmt.Sprintf(
		"<strong>Dear Customer,</strong><br><br>We could not automatically confirm your transfer for order %s yet. Our team is verifying it manually and will update you shortly.",
		order.ID.Hex(),
	)

	return es.SendEmail(toEmail, subject, htmlContent)
}
