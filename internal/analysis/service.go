// Package analysis orchestrates a backend analysis run and assembles the
// resulting report payload.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/resumail/resumail/internal/backend"
	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/internal/report"
)

// ErrNoEmails is returned when nothing was selected for analysis.
var ErrNoEmails = fmt.Errorf("analysis: no emails selected: %w", httpx.ErrValidation)

// InsufficientCreditsError reports a balance below the cost of a run.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("analysis: %d credits required, %d available", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return httpx.ErrPayment }

// Backend is the subset of the backend client used here.
type Backend interface {
	Credits(ctx context.Context, userID string) (int, error)
	Analyze(ctx context.Context, req backend.AnalyzeRequest) (backend.AnalyzeResponse, error)
	ReportsByIDs(ctx context.Context, ids []string) ([]report.Payload, error)
}

// Result is a completed analysis.
type Result struct {
	FinalReportID string                 `json:"final_report_id,omitempty"`
	MiniReportIDs []string               `json:"mini_report_ids"`
	CreditsLeft   *int                   `json:"credits_left,omitempty"`
	Payload       report.Payload         `json:"payload"`
	Report        report.CanonicalReport `json:"report"`
}

// Service runs analyses.
type Service struct {
	backend         Backend
	creditsPerEmail int
	logger          *slog.Logger
}

// NewService constructs a Service. creditsPerEmail <= 0 disables the credit
// check.
func NewService(b Backend, creditsPerEmail int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, creditsPerEmail: creditsPerEmail, logger: logger}
}

// Analyze checks the balance, submits emails and returns the final report
// with its mini reports attached.
func (s *Service) Analyze(ctx context.Context, userID string, emails []backend.Email) (Result, error) {
	if len(emails) == 0 {
		return Result{}, ErrNoEmails
	}
	if s.creditsPerEmail > 0 {
		available, err := s.backend.Credits(ctx, userID)
		if err != nil {
			return Result{}, fmt.Errorf("analysis: credits: %w", err)
		}
		if required := len(emails) * s.creditsPerEmail; available < required {
			return Result{}, &InsufficientCreditsError{Required: required, Available: available}
		}
	}

	resp, err := s.backend.Analyze(ctx, backend.AnalyzeRequest{UserID: userID, Emails: emails})
	if err != nil {
		return Result{}, fmt.Errorf("analysis: analyze: %w", err)
	}

	final := resp.Report
	if final == nil && resp.FinalReportID != "" {
		reports, err := s.backend.ReportsByIDs(ctx, []string{string(resp.FinalReportID)})
		if err != nil {
			return Result{}, fmt.Errorf("analysis: final report: %w", err)
		}
		if len(reports) > 0 {
			final = reports[0]
		}
	}
	if final == nil {
		return Result{}, errors.New("analysis: backend returned no report")
	}

	minis, err := s.backend.ReportsByIDs(ctx, resp.MiniReportIDs.Strings())
	if err != nil {
		// the final report is still usable on its own
		s.logger.Warn("fetch mini reports", slog.String("user_id", userID), slog.Any("error", err))
		minis = nil
	}

	payload := assemble(final, minis, len(emails))
	s.logger.Info("analysis completed",
		slog.String("user_id", userID),
		slog.Int("emails", len(emails)),
		slog.String("final_report_id", string(resp.FinalReportID)),
	)
	return Result{
		FinalReportID: string(resp.FinalReportID),
		MiniReportIDs: resp.MiniReportIDs.Strings(),
		CreditsLeft:   resp.CreditsLeft,
		Payload:       payload,
		Report:        report.Normalize(payload),
	}, nil
}

func assemble(final report.Payload, minis []report.Payload, emailCount int) report.Payload {
	out := make(report.Payload, len(final)+2)
	for k, v := range final {
		out[k] = v
	}
	if _, ok := out["mini_reports"]; !ok && len(minis) > 0 {
		items := make([]any, 0, len(minis))
		for _, m := range minis {
			items = append(items, map[string]any(m))
		}
		out["mini_reports"] = items
	}
	if _, ok := report.ExplicitTotal(out); !ok {
		out["total_emails"] = emailCount
	}
	return out
}
