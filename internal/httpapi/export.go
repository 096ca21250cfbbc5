package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"

	"account_factory/internal/model"
)

// Export formats are read-only views over the account list; nothing here
// touches the pipeline.

const exportTimeLayout = "02-01-06 15:04"

func formatAccountLine(acc model.Account) string {
	return fmt.Sprintf("%s|%s|%s|Created: %s",
		acc.Username, acc.Password, acc.Email, acc.CreatedAt.Format(exportTimeLayout))
}

func (s *Server) exportAccounts(w http.ResponseWriter, r *http.Request) ([]model.Account, bool) {
	accounts, err := s.store.ListAccounts(r.Context(), accountListLimit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return nil, false
	}
	if len(accounts) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "no accounts to export"})
		return nil, false
	}
	return accounts, true
}

func (s *Server) handleExportTXT(w http.ResponseWriter, r *http.Request) {
	accounts, ok := s.exportAccounts(w, r)
	if !ok {
		return
	}

	lines := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		lines = append(lines, formatAccountLine(acc))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ACCOUNTS_%d.txt", len(accounts)))
	_, _ = w.Write([]byte(strings.Join(lines, "\n")))
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	accounts, ok := s.exportAccounts(w, r)
	if !ok {
		return
	}

	var b strings.Builder
	b.WriteString("Username,Email,Password,Phone,Status,Provider,Created At\n")
	for i, acc := range accounts {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strings.Join([]string{
			acc.Username,
			acc.Email,
			acc.Password,
			acc.Phone,
			string(acc.Status),
			acc.EmailProvider,
			acc.CreatedAt.Format("2006-01-02 15:04:05"),
		}, ","))
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ACCOUNTS_%d.csv", len(accounts)))
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	accounts, ok := s.exportAccounts(w, r)
	if !ok {
		return
	}

	f := excelize.NewFile()
	const sheet = "Accounts"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	f.SetActiveSheet(idx)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{"ID", "Username", "Password", "Email", "Phone", "Status", "Created At"}
	for col, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for row, acc := range accounts {
		values := []any{
			acc.ID,
			acc.Username,
			acc.Password,
			acc.Email,
			acc.Phone,
			string(acc.Status),
			acc.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ACCOUNTS_%d.xlsx", len(accounts)))
	if err := f.Write(w); err != nil {
		s.bus.Log("warn", "xlsx export write failed", map[string]any{"error": err.Error()})
	}
}
