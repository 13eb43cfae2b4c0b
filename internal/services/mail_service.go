// services/mail_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"go.uber.org/zap"
	"storehere/internal/infra"
	"storehere/pkg/resilience"
	"storehere/pkg/utils"
)

type IMailService interface {
	SendWelcome(ctx context.Context, m WelcomeMail) error
	SendPaymentConfirmation(ctx context.Context, m PaymentMail) error
	SendPaymentFailed(ctx context.Context, m PaymentMail) error
	SendWaitlistPaid(ctx context.Context, to, name string) error
	SendContainerAvailable(ctx context.Context, to, name string) error
}

type MailConfig struct {
	AppName    string
	AppBaseURL string
}

type WelcomeMail struct {
	To               string
	Name             string
	ContainerNumber  string
	SiteName         string
	TotalCents       int64
	BondCents        int64
	TrialDays        int
	BillingFrequency string
	InvoiceURL       string
}

type PaymentMail struct {
	To              string
	Name            string
	ContainerNumber string
	AmountCents     int64
	PaidAt          time.Time
	NextDueDate     *time.Time
	InvoiceURL      string
}

type sesMailService struct {
	cfg    MailConfig
	sender infra.EmailSender
	runner *resilience.Runner
	logger *zap.Logger
	html   *template.Template
	text   *texttemplate.Template
}

func NewMailService(cfg MailConfig, sender infra.EmailSender, runner *resilience.Runner, logger *zap.Logger) IMailService {
	return &sesMailService{
		cfg:    cfg,
		sender: sender,
		runner: runner,
		logger: logger.Named("mail"),
		html:   template.Must(template.New("html").Parse(baseHTMLTemplate)),
		text:   texttemplate.Must(texttemplate.New("text").Parse(plainTextTemplate)),
	}
}

type EmailRow struct {
	Label string
	Value string
}

type EmailData struct {
	Title     string
	Greeting  string
	Intro     string
	Rows      []EmailRow
	ButtonURL string
	ButtonTxt string
	AppName   string
	Year      int
}

func greeting(name string) string {
	if name == "" {
		return "Hi there,"
	}
	return fmt.Sprintf("Hi %s,", name)
}

func (s *sesMailService) SendWelcome(ctx context.Context, m WelcomeMail) error {
	rent := m.TotalCents - m.BondCents
	data := EmailData{
		Title:    "Welcome to " + s.cfg.AppName,
		Greeting: greeting(m.Name),
		Intro:    "Your payment has been received and your storage container is ready.",
		Rows: []EmailRow{
			{"Container", m.ContainerNumber},
			{"Site", m.SiteName},
			{"Prepaid rent", utils.FormatCents(rent)},
			{"Security bond (refundable)", utils.FormatCents(m.BondCents)},
			{"Total paid", utils.FormatCents(m.TotalCents)},
			{"Prepaid period", fmt.Sprintf("%d days", m.TrialDays)},
			{"Billing after prepaid period", m.BillingFrequency},
		},
		ButtonURL: m.InvoiceURL,
		ButtonTxt: "View invoice",
	}
	return s.deliver(ctx, m.To, "Your "+s.cfg.AppName+" container is ready", data)
}

func (s *sesMailService) SendPaymentConfirmation(ctx context.Context, m PaymentMail) error {
	rows := []EmailRow{
		{"Container", m.ContainerNumber},
		{"Amount", utils.FormatCents(m.AmountCents)},
		{"Paid on", utils.FormatDisplay(m.PaidAt)},
	}
	if m.NextDueDate != nil {
		rows = append(rows, EmailRow{"Next payment", utils.FormatDisplay(*m.NextDueDate)})
	}
	data := EmailData{
		Title:     "Payment received",
		Greeting:  greeting(m.Name),
		Intro:     "Thanks, we have received your storage payment.",
		Rows:      rows,
		ButtonURL: m.InvoiceURL,
		ButtonTxt: "View invoice",
	}
	return s.deliver(ctx, m.To, "Payment received", data)
}

func (s *sesMailService) SendPaymentFailed(ctx context.Context, m PaymentMail) error {
	link := m.InvoiceURL
	if link == "" {
		link = s.cfg.AppBaseURL + "/profile"
	}
	data := EmailData{
		Title:    "Payment failed",
		Greeting: greeting(m.Name),
		Intro:    "We could not process your latest storage payment. Please update your payment details to keep your container.",
		Rows: []EmailRow{
			{"Container", m.ContainerNumber},
			{"Amount due", utils.FormatCents(m.AmountCents)},
		},
		ButtonURL: link,
		ButtonTxt: "Pay now",
	}
	return s.deliver(ctx, m.To, "Action required: payment failed", data)
}

func (s *sesMailService) SendWaitlistPaid(ctx context.Context, to, name string) error {
	data := EmailData{
		Title:    "Payment received",
		Greeting: greeting(name),
		Intro:    "Your payment has been received but all containers are currently taken. You are on our waiting list and we will be in touch as soon as one is free.",
	}
	return s.deliver(ctx, to, "You're on the "+s.cfg.AppName+" waiting list", data)
}

func (s *sesMailService) SendContainerAvailable(ctx context.Context, to, name string) error {
	data := EmailData{
		Title:     "A container is available",
		Greeting:  greeting(name),
		Intro:     "Good news, a storage container has become available. Book now to secure it.",
		ButtonURL: s.cfg.AppBaseURL,
		ButtonTxt: "Book now",
	}
	return s.deliver(ctx, to, "A "+s.cfg.AppName+" container is available", data)
}

func (s *sesMailService) deliver(ctx context.Context, to, subject string, data EmailData) error {
	if to == "" {
		return fmt.Errorf("%w: missing recipient", utils.ErrInvalidInput)
	}
	data.AppName = s.cfg.AppName
	data.Year = time.Now().Year()

	html, text, err := s.renderEmail(data)
	if err != nil {
		return err
	}
	err = s.runner.Retry(ctx, "ses", func(ctx context.Context) error {
		return s.sender.Send(ctx, to, subject, html, text)
	})
	if err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	s.logger.Info("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

func (s *sesMailService) renderEmail(data EmailData) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := s.html.Execute(&hb, data); err != nil {
		return "", "", err
	}
	if err := s.text.Execute(&tb, data); err != nil {
		return "", "", err
	}
	return hb.String(), tb.String(), nil
}

const baseHTMLTemplate = `<!doctype html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width,initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 0; background: #f4f6f8; color: #1f2933; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; }
    .wrapper { width: 100%; padding: 32px 16px; box-sizing: border-box; }
    .container { max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 12px; overflow: hidden; border: 1px solid #e4e7eb; }
    .header { padding: 24px 32px; background: #0b3d2e; color: #f7c948; font-weight: 700; font-size: 20px; letter-spacing: 0.5px; }
    .hero { padding: 32px; }
    h1 { margin: 0 0 16px; font-size: 24px; }
    p { margin: 0 0 16px; line-height: 1.6; }
    table.details { width: 100%; border-collapse: collapse; margin: 16px 0 24px; }
    table.details td { padding: 8px 0; border-bottom: 1px solid #e4e7eb; font-size: 15px; }
    table.details td.value { text-align: right; font-weight: 600; }
    .btn { display: inline-block; padding: 14px 28px; background: #0b3d2e; color: #ffffff !important; text-decoration: none; border-radius: 8px; font-weight: 600; }
    .muted { color: #7b8794; font-size: 13px; word-break: break-all; }
    .footer { padding: 20px 32px; color: #7b8794; font-size: 13px; text-align: center; border-top: 1px solid #e4e7eb; }
  </style>
</head>
<body>
  <div class="wrapper">
    <div class="container">
      <div class="header">{{.AppName}}</div>
      <div class="hero">
        <h1>{{.Title}}</h1>
        <p>{{.Greeting}}</p>
        <p>{{.Intro}}</p>
        {{if .Rows}}
        <table class="details">
          {{range .Rows}}<tr><td>{{.Label}}</td><td class="value">{{.Value}}</td></tr>{{end}}
        </table>
        {{end}}
        {{if .ButtonURL}}
          <p><a class="btn" href="{{.ButtonURL}}">{{.ButtonTxt}}</a></p>
          <p class="muted">If the button doesn't work, copy this link into your browser:<br>{{.ButtonURL}}</p>
        {{end}}
      </div>
      <div class="footer">&copy; {{.Year}} {{.AppName}}</div>
    </div>
  </div>
</body>
</html>`

const plainTextTemplate = `{{.Title}}

{{.Greeting}}

{{.Intro}}
{{range .Rows}}
{{.Label}}: {{.Value}}{{end}}
{{if .ButtonURL}}
{{.ButtonTxt}}: {{.ButtonURL}}
{{end}}
{{.AppName}} (c) {{.Year}}
`
