package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"carebook/internal/domain"
	"carebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Statement"

var statementHeaders = []string{"Date", "Description", "Type", "Status", "Amount", "Balance"}

// Exporter renders wallet statements as xlsx workbooks.
type Exporter struct {
	ledger domain.Ledger
	dir    string
	now    func() time.Time
	logger *zerolog.Logger
}

func NewExporter(ledger domain.Ledger, dir string, logger *zerolog.Logger) *Exporter {
	return &Exporter{ledger: ledger, dir: dir, now: time.Now, logger: logger}
}

// Statement builds the workbook for userID. The caller closes it.
func (e *Exporter) Statement(ctx context.Context, userID string) (*excelize.File, error) {
	w, err := e.ledger.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Wallet statement: %s (%s)", userID, e.now().UTC().Format(models.DateLayout)))
	_ = f.MergeCell(sheetName, "A1", "F1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	if err := writeHeaders(f); err != nil {
		_ = f.Close()
		return nil, err
	}
	last, err := writeTransactions(f, w)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	writeSummary(f, w, last+2)

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "B", 40)
	_ = f.SetColWidth(sheetName, "C", "F", 14)
	return f, nil
}

func writeHeaders(f *excelize.File) error {
	style, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	for i, h := range statementHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
	return nil
}

// writeTransactions lists the log with a running balance from the opening
// balance and returns the last row written.
func writeTransactions(f *excelize.File, w *models.Wallet) (int, error) {
	styles := make(map[string]int)
	for key, color := range map[string]string{
		models.TxCredit:           "#C6EFCE",
		models.TxStatusProcessing: "#FFEB9C",
		models.TxDebit:            "#FFC7CE",
	} {
		s, err := f.NewStyle(&excelize.Style{Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1}})
		if err != nil {
			return 0, fmt.Errorf("row style: %w", err)
		}
		styles[key] = s
	}

	row := 3
	_ = f.SetCellValue(sheetName, "B3", "Opening balance")
	_ = f.SetCellValue(sheetName, "F3", w.InitialBalance.Float())

	running := w.InitialBalance
	for _, tx := range w.Transactions {
		row++
		amount := tx.Amount
		switch tx.Type {
		case models.TxCredit:
			running += tx.Amount
		case models.TxDebit:
			running -= tx.Amount
			amount = -tx.Amount
		}

		values := []any{tx.Date.UTC().Format(time.DateTime), tx.Description, tx.Type, tx.Status, amount.Float(), running.Float()}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		key := tx.Type
		if tx.Status == models.TxStatusProcessing {
			key = models.TxStatusProcessing
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		end, _ := excelize.CoordinatesToCellName(len(values), row)
		_ = f.SetCellStyle(sheetName, start, end, styles[key])
	}
	return row, nil
}

func writeSummary(f *excelize.File, w *models.Wallet, row int) {
	_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), "Balance")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), w.Balance.Float())
	_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row+1), "Pending")
	_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row+1), w.PendingBalance.Float())
}

// Save writes the statement under the export directory and returns its path.
func (e *Exporter) Save(ctx context.Context, userID string) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f, err := e.Statement(ctx, userID)
	if err != nil {
		return "", err
	}
	defer f.Close()

	name := fmt.Sprintf("statement_%s_%s.xlsx", userID, e.now().UTC().Format("20060102_150405"))
	path := filepath.Join(e.dir, name)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save statement: %w", err)
	}

	e.logger.Info().Str("file_path", path).Str("user_id", userID).Msg("statement exported")
	return path, nil
}
