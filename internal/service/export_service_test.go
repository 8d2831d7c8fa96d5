package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bfm-api/internal/models"
	"github.com/noah-isme/bfm-api/pkg/export"
	"github.com/noah-isme/bfm-api/pkg/storage"
)

type budgetSourceStub struct{}

func (budgetSourceStub) Get(ctx context.Context, id string) (*models.Budget, error) {
	return &models.Budget{
		ID:         id,
		Name:       "FY26 Operations",
		FiscalYear: 2026,
		Amount:     decimal.NewFromInt(10_000),
	}, nil
}

func (budgetSourceStub) Summary(ctx context.Context, budgetID string) (*models.BudgetSummary, error) {
	return &models.BudgetSummary{
		BudgetID:        budgetID,
		FiscalYear:      2026,
		PlannedAmount:   decimal.NewFromInt(10_000),
		ObligatedAmount: decimal.NewFromInt(6_000),
		ExpendedAmount:  decimal.NewFromInt(4_500),
		RemainingAmount: decimal.NewFromInt(4_000),
		GeneratedAt:     time.Now().UTC(),
	}, nil
}

func (budgetSourceStub) ListLineItems(ctx context.Context, budgetID string) ([]models.LineItem, error) {
	return []models.LineItem{
		{ID: "li-1", BudgetID: budgetID, Name: "Travel", PlannedAmount: decimal.NewFromInt(4_000), ActualAmount: decimal.NewFromInt(3_000)},
		{ID: "li-2", BudgetID: budgetID, Name: "Equipment", PlannedAmount: decimal.NewFromInt(6_000), ActualAmount: decimal.NewFromInt(1_500)},
	}, nil
}

type varianceSourceStub struct{}

func (varianceSourceStub) VarianceReport(ctx context.Context, budgetID string) (*models.VarianceReport, error) {
	return &models.VarianceReport{
		BudgetID: budgetID,
		Overall:  CalculateVariance(decimal.NewFromInt(10_000), decimal.NewFromInt(8_500)),
		LineItems: []models.LineItemVariance{
			{LineItemID: "li-1", Name: "Travel", Variance: CalculateVariance(decimal.NewFromInt(4_000), decimal.NewFromInt(4_600))},
		},
		GeneratedAt: time.Now().UTC(),
	}, nil
}

type ledgerSourceStub struct{}

func (ledgerSourceStub) List(ctx context.Context, filter models.AppropriationFilter) ([]models.Appropriation, error) {
	return []models.Appropriation{{
		ID:              "appr-1",
		Code:            "0100-2026-OM",
		FiscalYear:      filter.FiscalYear,
		Type:            models.AppropriationTypeAnnual,
		TotalAmount:     decimal.NewFromInt(1_000_000),
		AllocatedAmount: decimal.NewFromInt(250_000),
		AvailableAmount: decimal.NewFromInt(750_000),
		ExpirationDate:  time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
	}}, nil
}

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	cfg := ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}
	svc := NewExportService(budgetSourceStub{}, varianceSourceStub{}, ledgerSourceStub{}, store, signer, cfg, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter())
	return svc, store
}

func strPtr(s string) *string {
	return &s
}

func TestExportGenerateBudgetSummaryCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-1",
		Type:      models.ReportTypeBudgetSummary,
		Params:    models.ReportJobParams{BudgetID: strPtr("bud-1"), Format: models.ReportFormatCSV},
		CreatedBy: "officer-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	require.Contains(t, result.URL, "/api/v1/export/")

	raw, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "Line Item")
	assert.Contains(t, content, "(overall)")
	assert.Contains(t, content, "Travel")
	assert.Contains(t, content, "6000.00")

	// The embedded token resolves back to this job and file.
	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, result.RelativePath, relPath)
}

func TestExportGenerateVariancePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-2",
		Type:      models.ReportTypeVariance,
		Params:    models.ReportJobParams{BudgetID: strPtr("bud-1"), Format: models.ReportFormatPDF},
		CreatedBy: "officer-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, models.ReportFormatPDF, result.Format)
	assert.True(t, strings.HasSuffix(result.RelativePath, ".pdf"))

	info, err := os.Stat(store.Path(result.RelativePath))
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportGenerateLedgerCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:        "job-3",
		Type:      models.ReportTypeLedger,
		Params:    models.ReportJobParams{FiscalYear: 2026, Format: models.ReportFormatCSV},
		CreatedBy: "admin-1",
	}

	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Contains(t, result.RelativePath, "fy2026")

	raw, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "0100-2026-OM")
	assert.Contains(t, content, "750000.00")
}

func TestExportGenerateRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	job := &models.ReportJob{
		ID:     "job-4",
		Type:   models.ReportTypeLedger,
		Params: models.ReportJobParams{FiscalYear: 2026, Format: models.ReportFormat("xlsx")},
	}

	_, err := svc.Generate(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}
