package store

import (
	"database/sql"
	"log"
	"math/rand"
	"strings"
	"time"
)

// retry knobs for SQLite "database is locked"/"busy" contention, adapted
// from the teacher's internal/database/sqlite_retry.go.
const (
	maxRetries = 200
	baseDelay  = 10 * time.Millisecond
	maxDelay   = 25 * time.Millisecond
)

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "database is locked") ||
		strings.Contains(s, "database table is locked") ||
		strings.Contains(s, "busy") ||
		strings.Contains(s, "locked")
}

func backoff(attempt int) time.Duration {
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

func retryableExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.Exec(query, args...)
		if !isRetryableError(err) {
			return result, err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[store] retry %d/%d for exec: %v", attempt+1, maxRetries, err)
		}
	}
	return result, err
}

func retryableQuery(db *sql.DB, query string, args ...interface{}) (*sql.Rows, error) {
	var rows *sql.Rows
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		rows, err = db.Query(query, args...)
		if !isRetryableError(err) {
			return rows, err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[store] retry %d/%d for query: %v", attempt+1, maxRetries, err)
		}
	}
	return rows, err
}

func retryableQueryRowScan(db *sql.DB, query string, args []interface{}, dest ...interface{}) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		row := db.QueryRow(query, args...)
		err = row.Scan(dest...)
		if !isRetryableError(err) {
			return err
		}
		if attempt < maxRetries-1 {
			time.Sleep(backoff(attempt))
			log.Printf("[store] retry %d/%d for query-row scan: %v", attempt+1, maxRetries, err)
		}
	}
	return err
}
