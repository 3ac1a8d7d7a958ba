package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavelanni/papergrader/internal/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadReports(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "student_002_report.json", `{
		"exam_id": "student_002",
		"total_awarded": 5, "total_max": 10, "percentage": 50,
		"graded_items": [
			{"question_id": "Q1", "awarded_points": 5, "max_points": 10, "verdict": "partially_correct", "confidence": 70, "flagged_for_review": true}
		]
	}`)
	writeFile(t, dir, "student_001_report.json", `{
		"exam_id": "student_001",
		"total_awarded": 10, "total_max": 10, "percentage": 100,
		"graded_items": [
			{"question_id": "Q1", "awarded_points": 10, "max_points": 10, "verdict": "correct"}
		]
	}`)
	writeFile(t, dir, "notes.txt", "not a report")

	reports, skipped, err := LoadReports(dir)
	if err != nil {
		t.Fatalf("LoadReports: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	// Sorted filename order.
	if reports[0].ExamID != "student_001" || reports[1].ExamID != "student_002" {
		t.Errorf("report order = %s, %s", reports[0].ExamID, reports[1].ExamID)
	}
	// Absent confidence defaults to 100.
	if got := reports[0].GradedItems[0].Confidence; got != model.DefaultConfidence {
		t.Errorf("missing confidence = %g, want %g", got, model.DefaultConfidence)
	}
	// Explicit confidence preserved.
	if got := reports[1].GradedItems[0].Confidence; got != 70 {
		t.Errorf("confidence = %g, want 70", got)
	}
	if !reports[1].GradedItems[0].FlaggedForReview {
		t.Error("flag should survive the round trip")
	}
}

func TestLoadReportsSkipsItemsWithoutQuestionID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "s1_report.json", `{
		"exam_id": "s1",
		"graded_items": [
			{"question_id": "Q1", "awarded_points": 5, "max_points": 10, "verdict": "correct"},
			{"awarded_points": 3, "max_points": 10, "verdict": "correct"}
		]
	}`)

	reports, skipped, err := LoadReports(dir)
	if err != nil {
		t.Fatalf("LoadReports: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if len(reports[0].GradedItems) != 1 {
		t.Errorf("expected 1 surviving item, got %d", len(reports[0].GradedItems))
	}
}

func TestLoadReportsEmptyDir(t *testing.T) {
	reports, skipped, err := LoadReports(t.TempDir())
	if err != nil {
		t.Fatalf("LoadReports on empty dir: %v", err)
	}
	if len(reports) != 0 || skipped != 0 {
		t.Errorf("expected zero reports from empty dir, got %d (skipped %d)", len(reports), skipped)
	}
}

func TestLoadReportsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad_report.json", `{not json`)

	if _, _, err := LoadReports(dir); err == nil {
		t.Error("expected error for malformed report file")
	}
}

func TestWriteAndReloadExamReport(t *testing.T) {
	dir := t.TempDir()
	rep := model.NewExamReport(model.ExamResult{
		ExamID: "s1",
		Items: []model.GradedItem{
			{QuestionID: "Q1", AwardedPoints: 10, MaxPoints: 10, Verdict: model.VerdictCorrect, Confidence: 95},
			{QuestionID: "Q2", AwardedPoints: 4, MaxPoints: 10, Verdict: model.VerdictPartial, Confidence: 60, FlaggedForReview: true},
		},
	})

	path := filepath.Join(dir, "s1"+ReportSuffix)
	if err := WriteExamReport(path, rep); err != nil {
		t.Fatalf("WriteExamReport: %v", err)
	}

	reports, _, err := LoadReports(dir)
	if err != nil {
		t.Fatalf("LoadReports: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	got := reports[0]
	if got.ExamID != "s1" || got.TotalAwarded != 14 || got.TotalMax != 20 || got.Percentage != 70 {
		t.Errorf("reloaded report = %+v", got)
	}
	if len(got.GradedItems) != 2 || !got.GradedItems[1].FlaggedForReview {
		t.Errorf("reloaded items = %+v", got.GradedItems)
	}
}

func TestItemBreakdown(t *testing.T) {
	items := []model.GradedItem{
		{QuestionID: "Q1", AwardedPoints: 10, MaxPoints: 10},
		{QuestionID: "Q2", AwardedPoints: 4.5, MaxPoints: 10},
	}
	got := ItemBreakdown(items)
	want := "Q1:10/10; Q2:4.5/10"
	if got != want {
		t.Errorf("ItemBreakdown = %q, want %q", got, want)
	}
	if ItemBreakdown(nil) != "" {
		t.Errorf("ItemBreakdown(nil) = %q, want empty", ItemBreakdown(nil))
	}
}

func TestWriteSummaryCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades_summary.csv")
	rows := []model.SummaryRow{
		{ExamID: "s1", TotalAwarded: 14, TotalMax: 20, Percentage: 70, FlaggedCount: 1, ItemBreakdown: "Q1:10/10; Q2:4/10"},
	}
	if err := WriteSummaryCSV(path, rows); err != nil {
		t.Fatalf("WriteSummaryCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines", len(lines))
	}
	if lines[0] != "exam_id,total_awarded,total_max,percentage,flagged_count,item_breakdown" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "s1,14.00,20.00,70.00,1,Q1:10/10; Q2:4/10" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestWriteSummaryCSVNoRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades_summary.csv")
	if err := WriteSummaryCSV(path, nil); err != nil {
		t.Fatalf("WriteSummaryCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	got := strings.TrimSpace(string(data))
	want := strings.Join(summaryHeader, ",")
	if got != want {
		t.Errorf("empty summary should be header-only, got %q", got)
	}
}

func TestWriteReviewQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_queue.json")
	items := []model.ReviewItem{
		{ExamID: "s1", QuestionID: "Q2", AwardedPoints: 4, MaxPoints: 10, Verdict: model.VerdictPartial, Confidence: 60, Feedback: "check step 2"},
	}
	if err := WriteReviewQueue(path, items); err != nil {
		t.Fatalf("WriteReviewQueue: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	var queue model.ReviewQueue
	if err := json.Unmarshal(data, &queue); err != nil {
		t.Fatalf("parse queue: %v", err)
	}
	if queue.TotalFlagged != 1 || len(queue.Items) != 1 {
		t.Errorf("queue = %+v", queue)
	}
	if queue.Items[0].ExamID != "s1" || queue.Items[0].QuestionID != "Q2" {
		t.Errorf("item = %+v", queue.Items[0])
	}
}

func TestWriteReviewQueueEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_queue.json")
	if err := WriteReviewQueue(path, nil); err != nil {
		t.Fatalf("WriteReviewQueue: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"total_flagged": 0`) || !strings.Contains(s, `"items": []`) {
		t.Errorf("empty queue should serialize with an empty items array, got %s", s)
	}
}

func TestLoadAnswerKey(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "answer_key.json", `{
		"Q1": {"answer": "Paris", "max_points": 10, "key_points": ["capital", "France"]},
		"Q2": {"answer": "H2O", "max_points": 5}
	}`)

	key, err := LoadAnswerKey(filepath.Join(dir, "answer_key.json"))
	if err != nil {
		t.Fatalf("LoadAnswerKey: %v", err)
	}
	if len(key) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(key))
	}
	if key["Q1"].Answer != "Paris" || key["Q1"].MaxPoints != 10 {
		t.Errorf("Q1 = %+v", key["Q1"])
	}
	if len(key["Q1"].KeyPoints) != 2 {
		t.Errorf("Q1 key points = %v", key["Q1"].KeyPoints)
	}
}

func TestWriteSummaryXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grades_summary.xlsx")
	rows := []model.SummaryRow{
		{ExamID: "s1", TotalAwarded: 14, TotalMax: 20, Percentage: 70, FlaggedCount: 1, ItemBreakdown: "Q1:10/10"},
	}
	if err := WriteSummaryXLSX(path, rows); err != nil {
		t.Fatalf("WriteSummaryXLSX: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat xlsx: %v", err)
	}
	if info.Size() == 0 {
		t.Error("xlsx file should not be empty")
	}
}
