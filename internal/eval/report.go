package eval

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// reportHeader is the CSV column order.
var reportHeader = []string{
	"tag", "model_id", "recall_at_k", "mrr_at_k", "ndcg_at_k", "k", "chunk_size", "chunk_overlap",
}

// ReportName returns the report file name for a run started at now.
func ReportName(now time.Time) string {
	return "metrics_" + now.Format("20060102_150405") + ".csv"
}

// WriteReport writes rows to dir/metrics_YYYYMMDD_HHMMSS.csv, creating dir
// when needed, and returns the file path.
func WriteReport(dir string, rows []Row, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("eval: create reports dir: %w", err)
	}
	path := filepath.Join(dir, ReportName(now))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("eval: create report: %w", err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(reportHeader)
	for _, r := range rows {
		_ = w.Write([]string{
			r.Tag,
			r.ModelID,
			formatMetric(r.Recall),
			formatMetric(r.MRR),
			formatMetric(r.NDCG),
			strconv.Itoa(r.K),
			strconv.Itoa(r.ChunkSize),
			strconv.Itoa(r.ChunkOverlap),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return "", fmt.Errorf("eval: write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("eval: close report: %w", err)
	}
	return path, nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	metricStyle = cellStyle.Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderTable renders the summary of rows. Styled output is used when color
// is true; otherwise a fixed-width plain-text table is produced.
func RenderTable(rows []Row, color bool) string {
	k := 0
	if len(rows) > 0 {
		k = rows[0].K
	}
	headers := []string{"Tag", "Model", fmt.Sprintf("Recall@%d", k), fmt.Sprintf("MRR@%d", k), fmt.Sprintf("NDCG@%d", k)}

	if !color {
		return plainTable(headers, rows)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col >= 2:
				return metricStyle
			default:
				return cellStyle
			}
		})
	for _, r := range rows {
		t.Row(r.Tag, r.ModelID, summaryMetric(r.Recall), summaryMetric(r.MRR), summaryMetric(r.NDCG))
	}
	return "=== Retrieval Metrics Summary ===\n" + t.String() + "\n"
}

func plainTable(headers []string, rows []Row) string {
	var b strings.Builder
	b.WriteString("=== Retrieval Metrics Summary ===\n")
	fmt.Fprintf(&b, "%-18s %-48s %10s %10s %10s\n", headers[0], headers[1], headers[2], headers[3], headers[4])
	for _, r := range rows {
		fmt.Fprintf(&b, "%-18s %-48s %10s %10s %10s\n",
			r.Tag, r.ModelID, summaryMetric(r.Recall), summaryMetric(r.MRR), summaryMetric(r.NDCG))
	}
	b.WriteString(strings.Repeat("=", 86))
	b.WriteByte('\n')
	return b.String()
}

func summaryMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
