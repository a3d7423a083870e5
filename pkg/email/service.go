package email

import (
	"fmt"
	"log"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	baseURL     string
	sendGridKey string
	useSendGrid bool
}

// NewService creates a new email service.
// If sendGridAPIKey is provided, emails are sent via SendGrid; otherwise
// they are logged to console (development mode).
func NewService(fromEmail, fromName, baseURL, sendGridAPIKey string) *Service {
	useSendGrid := sendGridAPIKey != ""
	if useSendGrid {
		log.Printf("✅ Email service initialized with SendGrid")
	} else {
		log.Printf("⚠️  Email service in console-only mode (set SENDGRID_API_KEY for production)")
	}

	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		baseURL:     baseURL,
		sendGridKey: sendGridAPIKey,
		useSendGrid: useSendGrid,
	}
}

// SendWelcomeEmail greets a newly registered user.
func (s *Service) SendWelcomeEmail(toEmail, toName string) error {
	subject := "Welcome to ContentDesk"
	dashboardURL := s.baseURL + "/dashboard"
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Welcome to ContentDesk!</h2>
			<p>Hi %s,</p>
			<p>Your account is ready. You start with 10 free tokens to spend on blog posts, SEO articles and social media content.</p>
			<p><a href="%s" style="background-color: #4A90E2; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Open your dashboard</a></p>
			<p>Upgrade to Premium any time for 100 tokens per month.</p>
			<p>Thanks,<br>The ContentDesk Team</p>
		</body>
		</html>
	`, toName, dashboardURL)

	plainText := fmt.Sprintf(`
Hi %s,

Your ContentDesk account is ready. You start with 10 free tokens to spend on
blog posts, SEO articles and social media content.

Open your dashboard: %s

Upgrade to Premium any time for 100 tokens per month.

Thanks,
The ContentDesk Team
	`, toName, dashboardURL)

	if s.useSendGrid {
		return s.sendViaSendGrid(toEmail, toName, subject, body, plainText)
	}
	return s.logEmailToConsole(toEmail, toName, subject, dashboardURL)
}

// SendReceiptEmail confirms a completed payment.
func (s *Service) SendReceiptEmail(toEmail, toName, description string, amountCents int64) error {
	subject := "Your ContentDesk receipt"
	amount := fmt.Sprintf("$%.2f", float64(amountCents)/100)
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Payment received</h2>
			<p>Hi %s,</p>
			<p>Thanks for your purchase:</p>
			<p><strong>%s</strong> — %s</p>
			<p>Your account has been updated and the change is live now.</p>
			<p>Thanks,<br>The ContentDesk Team</p>
		</body>
		</html>
	`, toName, description, amount)

	plainText := fmt.Sprintf(`
Hi %s,

Thanks for your purchase:

%s — %s

Your account has been updated and the change is live now.

Thanks,
The ContentDesk Team
	`, toName, description, amount)

	if s.useSendGrid {
		return s.sendViaSendGrid(toEmail, toName, subject, body, plainText)
	}
	log.Printf("📧 [EMAIL] Receipt to: %s <%s> (%s, %s)", toName, toEmail, description, amount)
	return nil
}

// sendViaSendGrid sends email using SendGrid API
func (s *Service) sendViaSendGrid(toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)

	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	client := sendgrid.NewSendClient(s.sendGridKey)
	response, err := client.Send(message)
	if err != nil {
		log.Printf("❌ SendGrid error: %v", err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		log.Printf("❌ SendGrid returned error status %d: %s", response.StatusCode, response.Body)
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}

	log.Printf("✅ Email sent successfully to %s (SendGrid status: %d)", toEmail, response.StatusCode)
	return nil
}

// logEmailToConsole logs email details to console (development mode)
func (s *Service) logEmailToConsole(toEmail, toName, subject, actionURL string) error {
	log.Printf("📧 [EMAIL] %s", subject)
	log.Printf("   To: %s <%s>", toName, toEmail)
	log.Printf("   From: %s <%s>", s.fromName, s.fromEmail)
	log.Printf("   Action URL: %s", actionURL)
	log.Printf("   ⚠️  Email NOT sent (development mode)")
	return nil
}
