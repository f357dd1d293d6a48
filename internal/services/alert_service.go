package services

import (
	"context"
	"fmt"
	"strings"

	brevo "github.com/getbrevo/brevo-go/lib"

	"subly-reconciler/internal/config"
	"subly-reconciler/pkg/logging"
)

// AlertService emails a report to the operator after each scan run. Mail is
// best effort: a delivery failure is logged and never fails the run.
type AlertService struct {
	client    *brevo.APIClient
	fromEmail string
	toEmail   string
}

// NewAlertService creates a new alert service from the app configuration.
// It is disabled unless BREVO_API_KEY, BREVO_FROM_EMAIL and ALERT_EMAIL are
// all set.
func NewAlertService() *AlertService {
	cfg := config.AppConfig
	if cfg.BrevoAPIKey == "" || cfg.BrevoFromEmail == "" || cfg.AlertEmail == "" {
		logging.Infof("Run report emails disabled (Brevo not configured)")
		return &AlertService{}
	}

	brevoCfg := brevo.NewConfiguration()
	brevoCfg.AddDefaultHeader("api-key", cfg.BrevoAPIKey)
	return &AlertService{
		client:    brevo.NewAPIClient(brevoCfg),
		fromEmail: cfg.BrevoFromEmail,
		toEmail:   cfg.AlertEmail,
	}
}

// Enabled returns true when run reports are configured
func (s *AlertService) Enabled() bool {
	return s != nil && s.client != nil
}

// SendRunReport emails the outcome of one scan run, including any runError
// that aborted it.
func (s *AlertService) SendRunReport(ctx context.Context, result *RunResult, runErr error) {
	if !s.Enabled() {
		return
	}

	outcome := "OK"
	if runErr != nil || result.Failed() {
		outcome = "FAILED"
	}
	subject := fmt.Sprintf("[subly-reconciler] %s scan %s", result.Kind, outcome)

	email := brevo.SendSmtpEmail{
		Sender:      &brevo.SendSmtpEmailSender{Email: s.fromEmail, Name: "Subly Reconciler"},
		To:          []brevo.SendSmtpEmailTo{{Email: s.toEmail}},
		Subject:     subject,
		TextContent: runReportBody(result, runErr),
	}

	if _, _, err := s.client.TransactionalEmailsApi.SendTransacEmail(ctx, email); err != nil {
		logging.Errorf("Failed to send run report email: %v", err)
		return
	}
	logging.Infof("Run report email sent to %s", s.toEmail)
}

func runReportBody(result *RunResult, runErr error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s scan)\n\n", result.RunID, result.Kind)
	fmt.Fprintf(&b, "%s\n", result.Summary())
	if runErr != nil {
		fmt.Fprintf(&b, "\nRun aborted: %v\n", runErr)
	}
	if len(result.Failures) > 0 {
		b.WriteString("\nFailed entries:\n")
		for _, failure := range result.Failures {
			fmt.Fprintf(&b, "  - user %s subscription %d (%s): %s\n",
				failure.User, failure.SubscriptionID, failure.Stage, failure.Reason)
		}
	}
	return b.String()
}
