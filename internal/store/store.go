// Package store persists graded exam results in SQLite so analytics
// and the serve API can run without re-reading report files.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/papergrader/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exams (
		exam_id TEXT PRIMARY KEY,
		total_awarded REAL NOT NULL DEFAULT 0,
		total_max REAL NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		graded_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS graded_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		exam_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question_id TEXT NOT NULL,
		awarded_points REAL NOT NULL DEFAULT 0,
		max_points REAL NOT NULL DEFAULT 0,
		verdict TEXT NOT NULL DEFAULT '',
		feedback TEXT NOT NULL DEFAULT '',
		confidence REAL NOT NULL DEFAULT 100,
		flagged_for_review INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (exam_id) REFERENCES exams(exam_id)
	);

	CREATE TABLE IF NOT EXISTS run_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveExamReport stores one exam's report, replacing any previous
// result for the same exam ID. The pipeline is re-runnable, so a
// rerun simply overwrites.
func (s *Store) SaveExamReport(r model.ExamReport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM graded_items WHERE exam_id = ?`, r.ExamID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM exams WHERE exam_id = ?`, r.ExamID); err != nil {
		return err
	}

	_, err = tx.Exec(
		`INSERT INTO exams (exam_id, total_awarded, total_max, percentage, graded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ExamID, r.TotalAwarded, r.TotalMax, r.Percentage, time.Now(),
	)
	if err != nil {
		return err
	}

	for i, item := range r.GradedItems {
		_, err := tx.Exec(
			`INSERT INTO graded_items
			 (exam_id, position, question_id, awarded_points, max_points, verdict, feedback, confidence, flagged_for_review)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ExamID, i, item.QuestionID, item.AwardedPoints, item.MaxPoints,
			item.Verdict, item.Feedback, item.Confidence, item.FlaggedForReview,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetExamReport returns one exam's report, or sql.ErrNoRows.
func (s *Store) GetExamReport(examID string) (model.ExamReport, error) {
	var r model.ExamReport
	err := s.db.QueryRow(
		`SELECT exam_id, total_awarded, total_max, percentage FROM exams WHERE exam_id = ?`, examID,
	).Scan(&r.ExamID, &r.TotalAwarded, &r.TotalMax, &r.Percentage)
	if err != nil {
		return r, err
	}
	r.GradedItems, err = s.itemsForExam(examID)
	return r, err
}

// ListExamReports rebuilds all stored reports, ordered by exam ID for
// reproducible analytics input.
func (s *Store) ListExamReports() ([]model.ExamReport, error) {
	rows, err := s.db.Query(
		`SELECT exam_id, total_awarded, total_max, percentage FROM exams ORDER BY exam_id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []model.ExamReport
	for rows.Next() {
		var r model.ExamReport
		if err := rows.Scan(&r.ExamID, &r.TotalAwarded, &r.TotalMax, &r.Percentage); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range reports {
		items, err := s.itemsForExam(reports[i].ExamID)
		if err != nil {
			return nil, err
		}
		reports[i].GradedItems = items
	}
	return reports, nil
}

func (s *Store) itemsForExam(examID string) ([]model.GradedItem, error) {
	rows, err := s.db.Query(
		`SELECT question_id, awarded_points, max_points, verdict, feedback, confidence, flagged_for_review
		 FROM graded_items WHERE exam_id = ? ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.GradedItem
	for rows.Next() {
		var it model.GradedItem
		if err := rows.Scan(&it.QuestionID, &it.AwardedPoints, &it.MaxPoints, &it.Verdict,
			&it.Feedback, &it.Confidence, &it.FlaggedForReview); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ReviewItems returns every flagged item across all stored exams,
// ordered by exam ID then exam position.
func (s *Store) ReviewItems() ([]model.ReviewItem, error) {
	rows, err := s.db.Query(
		`SELECT exam_id, question_id, awarded_points, max_points, verdict, confidence, feedback
		 FROM graded_items WHERE flagged_for_review = 1 ORDER BY exam_id, position`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		var it model.ReviewItem
		if err := rows.Scan(&it.ExamID, &it.QuestionID, &it.AwardedPoints, &it.MaxPoints,
			&it.Verdict, &it.Confidence, &it.Feedback); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ExamCount returns the number of stored exams.
func (s *Store) ExamCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM exams`).Scan(&count)
	return count, err
}
