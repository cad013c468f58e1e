// SPDX-License-Identifier: MIT
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// VerifyIntegrity runs SQLite's integrity pragma against the file at
// path. Mode "quick" maps to quick_check, anything else to the full
// integrity_check. Diagnostic strings come back when the database is
// damaged, nil when it is healthy. The driver often refuses to read a
// damaged file at all; that refusal is itself the diagnosis, so
// corruption-class errors are reported as findings, not as failures.
func VerifyIntegrity(path string, mode string) ([]string, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database for verification: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		if issue, ok := corruptionIssue(err); ok {
			return []string{issue}, nil
		}
		return nil, fmt.Errorf("connect for verification: %w", err)
	}

	pragma := "PRAGMA integrity_check;"
	if mode == "quick" {
		pragma = "PRAGMA quick_check;"
	}

	rows, err := db.Query(pragma)
	if err != nil {
		if issue, ok := corruptionIssue(err); ok {
			return []string{issue}, nil
		}
		return nil, fmt.Errorf("integrity pragma: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			if issue, ok := corruptionIssue(err); ok {
				return append(results, issue), nil
			}
			return nil, fmt.Errorf("scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		if issue, ok := corruptionIssue(err); ok {
			return append(results, issue), nil
		}
		return nil, err
	}

	// Healthy is exactly one row saying "ok".
	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil, nil
	}
	if len(results) == 0 {
		return []string{"no results returned from integrity check"}, nil
	}
	return results, nil
}

// corruptionIssue maps SQLITE_CORRUPT and SQLITE_NOTADB (including
// their extended variants) to a diagnostic string.
func corruptionIssue(err error) (string, bool) {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return "", false
	}
	switch se.Code() & 0xff {
	case sqlitelib.SQLITE_CORRUPT, sqlitelib.SQLITE_NOTADB:
		return se.Error(), true
	}
	return "", false
}
