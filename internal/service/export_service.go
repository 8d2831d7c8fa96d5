package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/pkg/export"
	"github.com/noah-isme/bfm-api/pkg/storage"
)

type reportBudgetSource interface {
	Get(ctx context.Context, id string) (*models.Budget, error)
	Summary(ctx context.Context, budgetID string) (*models.BudgetSummary, error)
	ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error)
}

type reportVarianceSource interface {
	VarianceReport(ctx context.Context, budgetID string) (*models.VarianceReport, error)
}

type reportLedgerSource interface {
	List(ctx context.Context, filter models.AppropriationFilter) ([]models.Appropriation, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	budgets  reportBudgetSource
	variance reportVarianceSource
	ledger   reportLedgerSource
	storage  fileStorage
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// NewExportService constructs an ExportService.
func NewExportService(budgets reportBudgetSource, variance reportVarianceSource, ledger reportLedgerSource, storage fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		budgets:  budgets,
		variance: variance,
		ledger:   ledger,
		storage:  storage,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds dataset according to job definition and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildDataset(ctx, job)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/export/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := "all"
	if job.Params.BudgetID != nil && *job.Params.BudgetID != "" {
		scope = sanitizeFilename(*job.Params.BudgetID)
	} else if job.Params.FiscalYear != 0 {
		scope = fmt.Sprintf("fy%d", job.Params.FiscalYear)
	}
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func (s *ExportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, error) {
	switch job.Type {
	case models.ReportTypeBudgetSummary:
		return s.buildBudgetSummaryDataset(ctx, job.Params)
	case models.ReportTypeVariance:
		return s.buildVarianceDataset(ctx, job.Params)
	case models.ReportTypeLedger:
		return s.buildLedgerDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ExportService) buildBudgetSummaryDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	budgetID := deref(params.BudgetID)
	budget, err := s.budgets.Get(ctx, budgetID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	summary, err := s.budgets.Summary(ctx, budgetID)
	if err != nil {
		return export.Dataset{}, "", err
	}
	items, err := s.budgets.ListLineItems(ctx, budgetID)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := []map[string]string{{
		"Line Item":       "(overall)",
		"Planned":         summary.PlannedAmount.StringFixed(2),
		"Obligated":       summary.ObligatedAmount.StringFixed(2),
		"Expended":        summary.ExpendedAmount.StringFixed(2),
		"Remaining":       summary.RemainingAmount.StringFixed(2),
		"Program Element": "",
	}}
	for _, item := range items {
		rows = append(rows, map[string]string{
			"Line Item":       item.Name,
			"Planned":         item.PlannedAmount.StringFixed(2),
			"Obligated":       "",
			"Expended":        item.ActualAmount.StringFixed(2),
			"Remaining":       item.PlannedAmount.Sub(item.ActualAmount).StringFixed(2),
			"Program Element": item.ProgramElement,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Line Item", "Planned", "Obligated", "Expended", "Remaining", "Program Element"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Budget Summary %s (FY %d)", budget.Name, budget.FiscalYear)
	return dataset, title, nil
}

func (s *ExportService) buildVarianceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	budgetID := deref(params.BudgetID)
	report, err := s.variance.VarianceReport(ctx, budgetID)
	if err != nil {
		return export.Dataset{}, "", err
	}

	rows := []map[string]string{{
		"Line Item":    "(overall)",
		"Planned":      report.Overall.PlannedAmount.StringFixed(2),
		"Actual":       report.Overall.ActualAmount.StringFixed(2),
		"Variance":     report.Overall.Amount.StringFixed(2),
		"Variance (%)": report.Overall.Percent.StringFixed(2),
		"Status":       string(report.Overall.Status),
	}}
	for _, item := range report.LineItems {
		rows = append(rows, map[string]string{
			"Line Item":    item.Name,
			"Planned":      item.Variance.PlannedAmount.StringFixed(2),
			"Actual":       item.Variance.ActualAmount.StringFixed(2),
			"Variance":     item.Variance.Amount.StringFixed(2),
			"Variance (%)": item.Variance.Percent.StringFixed(2),
			"Status":       string(item.Variance.Status),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Line Item", "Planned", "Actual", "Variance", "Variance (%)", "Status"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Variance Report %s", budgetID)
	return dataset, title, nil
}

func (s *ExportService) buildLedgerDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	appropriations, err := s.ledger.List(ctx, models.AppropriationFilter{
		FiscalYear: params.FiscalYear,
		Limit:      200,
	})
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(appropriations))
	for _, a := range appropriations {
		rows = append(rows, map[string]string{
			"Code":        a.Code,
			"Fiscal Year": fmt.Sprintf("%d", a.FiscalYear),
			"Type":        string(a.Type),
			"Total":       a.TotalAmount.StringFixed(2),
			"Allocated":   a.AllocatedAmount.StringFixed(2),
			"Available":   a.AvailableAmount.StringFixed(2),
			"Expires":     a.ExpirationDate.UTC().Format("2006-01-02"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Code", "Fiscal Year", "Type", "Total", "Allocated", "Available", "Expires"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Appropriation Ledger FY %d", params.FiscalYear)
	return dataset, title, nil
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
