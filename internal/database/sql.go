package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLDatabase stores the archive in PostgreSQL or MySQL. Queries are written
// with ? placeholders and rebound for PostgreSQL.
type SQLDatabase struct {
	db      *sql.DB
	dialect dialect
}

func (d *SQLDatabase) InitSchema() error {
	queries := mysqlSchema
	if d.dialect == dialectPostgres {
		queries = postgresSchema
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

func (d *SQLDatabase) Close() error {
	return d.db.Close()
}

func (d *SQLDatabase) exec(query string, args ...any) error {
	_, err := d.db.Exec(rebind(d.dialect, query), args...)
	return err
}

func (d *SQLDatabase) InsertRun(run RunRecord) error {
	if run.ArchivedAt.IsZero() {
		run.ArchivedAt = time.Now().UTC()
	}
	upsert := `ON DUPLICATE KEY UPDATE
			status = VALUES(status), result = VALUES(result),
			passes = VALUES(passes), warnings = VALUES(warnings),
			failures = VALUES(failures), errors = VALUES(errors),
			minutes_used = VALUES(minutes_used), report_file = VALUES(report_file),
			archived_at = VALUES(archived_at)`
	if d.dialect == dialectPostgres {
		upsert = `ON CONFLICT (project_id, run_id) DO UPDATE SET
			status = EXCLUDED.status, result = EXCLUDED.result,
			passes = EXCLUDED.passes, warnings = EXCLUDED.warnings,
			failures = EXCLUDED.failures, errors = EXCLUDED.errors,
			minutes_used = EXCLUDED.minutes_used, report_file = EXCLUDED.report_file,
			archived_at = EXCLUDED.archived_at`
	}

	return d.exec(`
		INSERT INTO thwack_runs (project_id, run_id, name, status, result, passes, warnings, failures, errors, minutes_used, report_file, web_url, archived_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`+upsert,
		run.ProjectID, run.RunID, run.Name, run.Status, run.Result, run.Passes, run.Warnings, run.Failures,
		run.Errors, run.MinutesUsed, run.ReportFile, run.WebURL, run.ArchivedAt)
}

func (d *SQLDatabase) InsertTestCase(tc TestCase) error {
	ignore := "INSERT IGNORE INTO"
	conflict := ""
	if d.dialect == dialectPostgres {
		ignore = "INSERT INTO"
		conflict = "ON CONFLICT (project_id, run_id, test_id, outcome, device) DO NOTHING"
	}
	return d.exec(ignore+` thwack_test_cases (project_id, run_id, test_id, test_name, outcome, device, message)
		VALUES (?, ?, ?, ?, ?, ?, ?) `+conflict,
		tc.ProjectID, tc.RunID, tc.TestID, tc.TestName, tc.Outcome, tc.Device, tc.Message)
}

// InsertPerformance replaces any earlier sample of the same device and
// metric, so archiving a run again leaves one row per pair.
func (d *SQLDatabase) InsertPerformance(p PerformanceRecord) error {
	upsert := `ON DUPLICATE KEY UPDATE
			min_value = VALUES(min_value), avg_value = VALUES(avg_value), max_value = VALUES(max_value)`
	if d.dialect == dialectPostgres {
		upsert = `ON CONFLICT (project_id, run_id, device, metric) DO UPDATE SET
			min_value = EXCLUDED.min_value, avg_value = EXCLUDED.avg_value, max_value = EXCLUDED.max_value`
	}
	return d.exec(`
		INSERT INTO thwack_performance (project_id, run_id, device, metric, min_value, avg_value, max_value)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		`+upsert,
		p.ProjectID, p.RunID, p.Device, p.Metric, p.MinValue, p.AvgValue, p.MaxValue)
}

const runColumns = `project_id, run_id, name, status, result, passes, warnings, failures, errors, minutes_used, report_file, web_url, archived_at`

func scanRun(row interface{ Scan(...any) error }) (RunRecord, error) {
	var r RunRecord
	err := row.Scan(&r.ProjectID, &r.RunID, &r.Name, &r.Status, &r.Result, &r.Passes, &r.Warnings, &r.Failures,
		&r.Errors, &r.MinutesUsed, &r.ReportFile, &r.WebURL, &r.ArchivedAt)
	return r, err
}

// GetRun returns nil when the run was never archived.
func (d *SQLDatabase) GetRun(projectID, runID int) (*RunRecord, error) {
	row := d.db.QueryRow(rebind(d.dialect, `SELECT `+runColumns+` FROM thwack_runs WHERE project_id = ? AND run_id = ?`), projectID, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *SQLDatabase) RecentRuns(limit int) ([]RunRecord, error) {
	rows, err := d.db.Query(rebind(d.dialect, `SELECT `+runColumns+` FROM thwack_runs ORDER BY archived_at DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (d *SQLDatabase) GetTestCases(projectID, runID int) ([]TestCase, error) {
	rows, err := d.db.Query(rebind(d.dialect, `
		SELECT test_id, test_name, outcome, device, message
		FROM thwack_test_cases
		WHERE project_id = ? AND run_id = ?
		ORDER BY test_name, device
	`), projectID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []TestCase
	for rows.Next() {
		t := TestCase{ProjectID: projectID, RunID: runID}
		var message sql.NullString
		if err := rows.Scan(&t.TestID, &t.TestName, &t.Outcome, &t.Device, &message); err != nil {
			return nil, err
		}
		t.Message = message.String
		tests = append(tests, t)
	}
	return tests, rows.Err()
}

func (d *SQLDatabase) GetPerformance(projectID, runID int) ([]PerformanceRecord, error) {
	rows, err := d.db.Query(rebind(d.dialect, `
		SELECT device, metric, min_value, avg_value, max_value
		FROM thwack_performance
		WHERE project_id = ? AND run_id = ?
		ORDER BY device, metric
	`), projectID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PerformanceRecord
	for rows.Next() {
		p := PerformanceRecord{ProjectID: projectID, RunID: runID}
		if err := rows.Scan(&p.Device, &p.Metric, &p.MinValue, &p.AvgValue, &p.MaxValue); err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, rows.Err()
}

func (d *SQLDatabase) GetPassRateTrend(projectID int, days int) ([]DataPoint, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := d.db.Query(rebind(d.dialect, `
		SELECT
			DATE(archived_at) as day,
			COUNT(*) as total,
			SUM(passes) as passes,
			SUM(passes + warnings + failures) as tests
		FROM thwack_runs
		WHERE project_id = ? AND archived_at > ?
		GROUP BY DATE(archived_at)
		ORDER BY day ASC
	`), projectID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []DataPoint
	for rows.Next() {
		var day time.Time
		var total int
		var passes, tests sql.NullInt64

		if err := rows.Scan(&day, &total, &passes, &tests); err != nil {
			return nil, err
		}

		passRate := 0.0
		if tests.Int64 > 0 {
			passRate = float64(passes.Int64) / float64(tests.Int64) * 100
		}

		points = append(points, DataPoint{
			Date:     day,
			PassRate: passRate,
			Count:    total,
		})
	}
	return points, rows.Err()
}

// GetFlakyTests returns tests that both passed and failed across archived
// runs, most flaky first. The score is the failing share of runs.
func (d *SQLDatabase) GetFlakyTests(threshold float64) ([]FlakyTest, error) {
	rows, err := d.db.Query(rebind(d.dialect, `
		SELECT
			tc.test_name,
			COUNT(DISTINCT tc.run_id) as total_runs,
			COUNT(DISTINCT CASE WHEN tc.outcome = 'failure' THEN tc.run_id END) as failed_runs,
			COUNT(DISTINCT CASE WHEN tc.outcome = 'pass' THEN tc.run_id END) as passed_runs,
			MAX(CASE WHEN tc.outcome = 'failure' THEN r.archived_at END) as last_failure
		FROM thwack_test_cases tc
		JOIN thwack_runs r ON r.project_id = tc.project_id AND r.run_id = tc.run_id
		GROUP BY tc.test_name
		HAVING COUNT(DISTINCT CASE WHEN tc.outcome = 'failure' THEN tc.run_id END) > 0
			AND COUNT(DISTINCT CASE WHEN tc.outcome = 'pass' THEN tc.run_id END) > 0
	`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tests []FlakyTest
	for rows.Next() {
		var t FlakyTest
		var lastFailure sql.NullTime
		if err := rows.Scan(&t.TestName, &t.TotalRuns, &t.FailedRuns, &t.PassedRuns, &lastFailure); err != nil {
			return nil, err
		}
		t.LastFailure = lastFailure.Time
		if t.TotalRuns > 0 {
			t.FlakyScore = float64(t.FailedRuns) / float64(t.TotalRuns)
		}
		if t.FlakyScore >= threshold {
			tests = append(tests, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortFlaky(tests)
	return tests, nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func rebind(d dialect, query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
