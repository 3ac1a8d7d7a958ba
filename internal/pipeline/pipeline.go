// Package pipeline drives a grading run: it feeds each scanned exam to
// the oracle, applies the review gate, and writes the per-exam reports,
// the grades summary, and the cross-exam review queue.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pavelanni/papergrader/internal/llm"
	"github.com/pavelanni/papergrader/internal/model"
	"github.com/pavelanni/papergrader/internal/report"
	"github.com/pavelanni/papergrader/internal/review"
	"github.com/pavelanni/papergrader/internal/store"
)

// Output filenames within the output directory.
const (
	SummaryCSVName  = "grades_summary.csv"
	SummaryXLSXName = "grades_summary.xlsx"
	ReviewQueueName = "review_queue.json"
)

// Pipeline grades a batch of scanned exams.
type Pipeline struct {
	oracle llm.Oracle
	store  *store.Store // optional; nil disables persistence
	cfg    model.RunConfig
}

// New creates a pipeline. st may be nil when persistence is disabled.
func New(oracle llm.Oracle, st *store.Store, cfg model.RunConfig) *Pipeline {
	return &Pipeline{oracle: oracle, store: st, cfg: cfg}
}

// RunStats summarizes one pipeline run.
type RunStats struct {
	Graded  int
	Failed  int
	Flagged int
}

// Run grades every input file sequentially. An oracle failure is fatal
// for that exam only: it is logged and counted, and the run continues,
// so one garbled scan cannot sink the whole batch. Zero matched inputs
// is an error.
func (p *Pipeline) Run(ctx context.Context) (*RunStats, error) {
	inputs, err := filepath.Glob(filepath.Join(p.cfg.InputDir, p.cfg.Glob))
	if err != nil {
		return nil, fmt.Errorf("glob inputs: %w", err)
	}
	sort.Strings(inputs)
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no files matched %q in %s", p.cfg.Glob, p.cfg.InputDir)
	}

	stats := &RunStats{}
	var summaryRows []model.SummaryRow
	var reviewItems []model.ReviewItem

	for _, path := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		examID := examIDFromPath(path)
		exam, err := p.gradeOne(ctx, examID, path)
		if err != nil {
			stats.Failed++
			slog.Error("exam grading failed", "exam_id", examID, "error", err)
			continue
		}
		stats.Graded++
		stats.Flagged += exam.FlaggedCount()

		summaryRows = append(summaryRows, model.SummaryRow{
			ExamID:        exam.ExamID,
			TotalAwarded:  exam.TotalAwarded(),
			TotalMax:      exam.TotalMax(),
			Percentage:    exam.Percentage(),
			FlaggedCount:  exam.FlaggedCount(),
			ItemBreakdown: report.ItemBreakdown(exam.Items),
		})
		for _, item := range exam.FlaggedItems() {
			reviewItems = append(reviewItems, model.ReviewItem{
				ExamID:        exam.ExamID,
				QuestionID:    item.QuestionID,
				AwardedPoints: item.AwardedPoints,
				MaxPoints:     item.MaxPoints,
				Verdict:       item.Verdict,
				Confidence:    item.Confidence,
				Feedback:      item.Feedback,
			})
		}

		slog.Info("exam graded",
			"exam_id", exam.ExamID,
			"awarded", exam.TotalAwarded(),
			"max", exam.TotalMax(),
			"percentage", exam.Percentage(),
			"flagged", exam.FlaggedCount(),
		)
	}

	summaryPath := filepath.Join(p.cfg.OutputDir, SummaryCSVName)
	if err := report.WriteSummaryCSV(summaryPath, summaryRows); err != nil {
		return nil, err
	}
	if p.cfg.WriteXLSX {
		xlsxPath := filepath.Join(p.cfg.OutputDir, SummaryXLSXName)
		if err := report.WriteSummaryXLSX(xlsxPath, summaryRows); err != nil {
			return nil, err
		}
	}
	reviewPath := filepath.Join(p.cfg.OutputDir, ReviewQueueName)
	if err := report.WriteReviewQueue(reviewPath, reviewItems); err != nil {
		return nil, err
	}

	return stats, nil
}

// gradeOne runs the oracle for a single exam and freezes its report.
func (p *Pipeline) gradeOne(ctx context.Context, examID, path string) (model.ExamResult, error) {
	rawText, err := os.ReadFile(path)
	if err != nil {
		return model.ExamResult{}, fmt.Errorf("read %s: %w", path, err)
	}

	result, err := p.oracle.Judge(ctx, examID, string(rawText))
	if err != nil {
		return model.ExamResult{}, err
	}

	exam := model.ExamResult{
		ExamID:    examID,
		Items:     review.ApplyAll(result.Judgments, p.cfg.ConfidenceThreshold),
		Extracted: result.Extracted,
	}

	rep := model.NewExamReport(exam)
	reportPath := filepath.Join(p.cfg.OutputDir, examID+report.ReportSuffix)
	if err := report.WriteExamReport(reportPath, rep); err != nil {
		return model.ExamResult{}, err
	}
	if p.store != nil {
		if err := p.store.SaveExamReport(rep); err != nil {
			return model.ExamResult{}, fmt.Errorf("persist exam %s: %w", examID, err)
		}
	}

	return exam, nil
}

func examIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
