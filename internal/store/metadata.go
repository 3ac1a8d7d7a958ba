package store

import (
	"database/sql"
	"strconv"
)

// SetMetadata upserts a key-value pair in the run_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO run_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM run_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// RunInfo describes the configuration of the last grading run.
type RunInfo struct {
	Model               string
	Mode                string
	ConfidenceThreshold float64
}

// SetRunInfo stores all RunInfo fields as metadata rows.
func (s *Store) SetRunInfo(info RunInfo) error {
	pairs := []struct{ k, v string }{
		{"model", info.Model},
		{"mode", info.Mode},
		{"confidence_threshold", strconv.FormatFloat(info.ConfidenceThreshold, 'f', -1, 64)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return nil
}

// GetRunInfo reads all RunInfo fields from metadata.
func (s *Store) GetRunInfo() (RunInfo, error) {
	var info RunInfo
	var err error

	if info.Model, err = s.GetMetadata("model"); err != nil {
		return info, err
	}
	if info.Mode, err = s.GetMetadata("mode"); err != nil {
		return info, err
	}
	threshold, err := s.GetMetadata("confidence_threshold")
	if err != nil {
		return info, err
	}
	if threshold != "" {
		info.ConfidenceThreshold, err = strconv.ParseFloat(threshold, 64)
		if err != nil {
			return info, err
		}
	}
	return info, nil
}
