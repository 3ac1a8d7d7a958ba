// Package report reads and writes the pipeline's file formats: per-exam
// report JSON, the cross-exam review queue, the grades summary table,
// and the analytics report.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/papergrader/internal/model"
)

// ReportSuffix is the filename suffix of per-exam report files.
const ReportSuffix = "_report.json"

// wireGradedItem mirrors model.GradedItem with an optional confidence,
// so reports written by other tools without the field still load.
type wireGradedItem struct {
	QuestionID       string   `json:"question_id"`
	AwardedPoints    float64  `json:"awarded_points"`
	MaxPoints        float64  `json:"max_points"`
	Verdict          string   `json:"verdict"`
	Feedback         string   `json:"feedback"`
	Confidence       *float64 `json:"confidence"`
	FlaggedForReview bool     `json:"flagged_for_review"`
}

type wireExamReport struct {
	ExamID         string                  `json:"exam_id"`
	TotalAwarded   float64                 `json:"total_awarded"`
	TotalMax       float64                 `json:"total_max"`
	Percentage     float64                 `json:"percentage"`
	ExtractedItems []model.ExtractedAnswer `json:"extracted_items"`
	GradedItems    []wireGradedItem        `json:"graded_items"`
}

// LoadReports reads all *_report.json files from dir in sorted filename
// order. Items with no question_id are a data-integrity defect local to
// that item: they are skipped and counted, never silently dropped.
// A missing confidence field defaults to model.DefaultConfidence.
// An empty or missing directory yields zero reports and no error; the
// caller decides how to present the empty run.
func LoadReports(dir string) (reports []model.ExamReport, skipped int, err error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+ReportSuffix))
	if err != nil {
		return nil, 0, fmt.Errorf("glob reports in %s: %w", dir, err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, 0, fmt.Errorf("read %s: %w", path, err)
		}

		var wire wireExamReport
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, 0, fmt.Errorf("parse %s: %w", path, err)
		}

		r := model.ExamReport{
			ExamID:         wire.ExamID,
			TotalAwarded:   wire.TotalAwarded,
			TotalMax:       wire.TotalMax,
			Percentage:     wire.Percentage,
			ExtractedItems: wire.ExtractedItems,
		}
		for _, item := range wire.GradedItems {
			if item.QuestionID == "" {
				skipped++
				slog.Warn("skipping graded item without question_id", "file", filepath.Base(path))
				continue
			}
			confidence := model.DefaultConfidence
			if item.Confidence != nil {
				confidence = *item.Confidence
			}
			r.GradedItems = append(r.GradedItems, model.GradedItem{
				QuestionID:       item.QuestionID,
				AwardedPoints:    item.AwardedPoints,
				MaxPoints:        item.MaxPoints,
				Verdict:          model.Verdict(item.Verdict),
				Feedback:         item.Feedback,
				Confidence:       confidence,
				FlaggedForReview: item.FlaggedForReview,
			})
		}
		reports = append(reports, r)
	}

	return reports, skipped, nil
}

// LoadAnswerKey reads the answer key JSON used by two-stage grading.
func LoadAnswerKey(path string) (model.AnswerKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answer key %s: %w", path, err)
	}
	var key model.AnswerKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("parse answer key %s: %w", path, err)
	}
	return key, nil
}

// WriteExamReport writes one exam's report JSON.
func WriteExamReport(path string, r model.ExamReport) error {
	return writeJSON(path, r)
}

// WriteReviewQueue writes the cross-exam review queue JSON.
func WriteReviewQueue(path string, items []model.ReviewItem) error {
	queue := model.ReviewQueue{
		TotalFlagged: len(items),
		Items:        items,
	}
	if queue.Items == nil {
		queue.Items = []model.ReviewItem{}
	}
	return writeJSON(path, queue)
}

// WriteAnalytics writes the analytics report JSON.
func WriteAnalytics(path string, r model.AnalyticsReport) error {
	if r.Insights == nil {
		r.Insights = []string{}
	}
	return writeJSON(path, r)
}

var summaryHeader = []string{
	"exam_id", "total_awarded", "total_max", "percentage", "flagged_count", "item_breakdown",
}

// WriteSummaryCSV writes the one-row-per-exam grades summary. With
// zero rows it still writes a header-only file, so a run where every
// exam failed leaves a summary whose schema downstream imports can
// read.
func WriteSummaryCSV(path string, rows []model.SummaryRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(summaryRecord(row)); err != nil {
			return fmt.Errorf("write row for %s: %w", row.ExamID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// WriteSummaryXLSX writes the same summary as a spreadsheet for
// teachers who live in Excel.
func WriteSummaryXLSX(path string, rows []model.SummaryRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Grades"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(summaryHeader))
	for i, h := range summaryHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			row.ExamID,
			row.TotalAwarded,
			row.TotalMax,
			row.Percentage,
			row.FlaggedCount,
			row.ItemBreakdown,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row for %s: %w", row.ExamID, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func summaryRecord(row model.SummaryRow) []string {
	return []string{
		row.ExamID,
		strconv.FormatFloat(row.TotalAwarded, 'f', 2, 64),
		strconv.FormatFloat(row.TotalMax, 'f', 2, 64),
		strconv.FormatFloat(row.Percentage, 'f', 2, 64),
		strconv.Itoa(row.FlaggedCount),
		row.ItemBreakdown,
	}
}

// ItemBreakdown renders the compact per-question score list used in
// the summary table, e.g. "Q1:10/10; Q2:4.5/10".
func ItemBreakdown(items []model.GradedItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprintf("%s:%g/%g", it.QuestionID, it.AwardedPoints, it.MaxPoints))
	}
	return strings.Join(parts, "; ")
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
