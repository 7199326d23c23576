package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"crimewatch/crime"
)

var ErrNotFound = errors.New("not found")

const schema = `
    CREATE TABLE IF NOT EXISTS crimes (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        incident_number TEXT,
        offense_code INTEGER,
        offense_code_group TEXT,
        offense_description TEXT,
        district TEXT,
        reporting_area TEXT,
        shooting INTEGER DEFAULT 0,
        occurred_on DATETIME,
        year INTEGER,
        month INTEGER,
        day_of_week TEXT,
        hour INTEGER,
        ucr_part TEXT,
        street TEXT,
        lat REAL,
        long REAL
    );
    CREATE INDEX IF NOT EXISTS idx_crimes_district ON crimes(district);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_version TEXT NOT NULL,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        trained_at DATETIME,
        data_points INTEGER,
        test_points INTEGER,
        features INTEGER,
        classes INTEGER
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_version TEXT,
        district TEXT,
        day_of_week TEXT,
        hour INTEGER,
        predicted_label TEXT,
        confidence REAL,
        dropped TEXT,
        timestamp DATETIME
    );
    CREATE TABLE IF NOT EXISTS artifacts (
        artifact_key TEXT PRIMARY KEY,
        data BLOB NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

// DB is the SQLite store for incidents, training history, the prediction
// log and artifact blobs.
type DB struct {
	conn *sql.DB
}

// Open creates the database file and its tables if needed.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := path
	if path != ":memory:" {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

// InsertRecords appends incidents in a single transaction.
func (d *DB) InsertRecords(ctx context.Context, records []crime.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO crimes (
            incident_number, offense_code, offense_code_group, offense_description,
            district, reporting_area, shooting, occurred_on, year, month,
            day_of_week, hour, ucr_part, street, lat, long
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	defer stmt.Close()

	for i, r := range records {
		_, err := stmt.ExecContext(ctx,
			nullString(r.IncidentNumber), nullInt(r.OffenseCode), nullString(r.OffenseCodeGroup), nullString(r.OffenseDescription),
			nullString(r.District), nullString(r.ReportingArea), r.Shooting, nullTime(r.OccurredOn), nullInt(r.Year), nullInt(r.Month),
			nullString(r.DayOfWeek), nullInt(r.Hour), nullString(r.UCRPart), nullString(r.Street), nullFloat(r.Lat), nullFloat(r.Long))
		if err != nil {
			tx.Rollback()
			return 0, fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Fetch returns every stored incident in insertion order.
func (d *DB) Fetch(ctx context.Context) ([]crime.Record, error) {
	rows, err := d.conn.QueryContext(ctx, `
        SELECT incident_number, offense_code, offense_code_group, offense_description,
               district, reporting_area, shooting, occurred_on, year, month,
               day_of_week, hour, ucr_part, street, lat, long
        FROM crimes
        ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]crime.Record, 0)
	for rows.Next() {
		var (
			r                                          crime.Record
			incident, group, desc, district, area, day sql.NullString
			ucr, street                                sql.NullString
			code, year, month, hour                    sql.NullInt64
			shooting                                   sql.NullBool
			occurred                                   sql.NullTime
			lat, long                                  sql.NullFloat64
		)
		if err := rows.Scan(&incident, &code, &group, &desc, &district, &area, &shooting, &occurred,
			&year, &month, &day, &hour, &ucr, &street, &lat, &long); err != nil {
			return nil, err
		}
		r.IncidentNumber = incident.String
		r.OffenseCode = intPtr(code)
		r.OffenseCodeGroup = group.String
		r.OffenseDescription = desc.String
		r.District = district.String
		r.ReportingArea = area.String
		r.Shooting = shooting.Bool
		if occurred.Valid {
			t := occurred.Time
			r.OccurredOn = &t
		}
		r.Year = intPtr(year)
		r.Month = intPtr(month)
		r.DayOfWeek = day.String
		r.Hour = intPtr(hour)
		r.UCRPart = ucr.String
		r.Street = street.String
		if lat.Valid {
			r.Lat = crime.FloatPtr(lat.Float64)
		}
		if long.Valid {
			r.Long = crime.FloatPtr(long.Float64)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelVersion string    `json:"model_version"`
	ModelName    string    `json:"model_name"`
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	TrainedAt    time.Time `json:"trained_at"`
	DataPoints   int       `json:"data_points"`
	TestPoints   int       `json:"test_points"`
	Features     int       `json:"features"`
	Classes      int       `json:"classes"`
}

func (d *DB) SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	_, err := d.conn.ExecContext(ctx, `
        INSERT INTO training_log (
            model_version, model_name, accuracy, precision, recall,
            trained_at, data_points, test_points, features, classes
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ModelVersion, log.ModelName, log.Accuracy, log.Precision, log.Recall,
		log.TrainedAt.UTC(), log.DataPoints, log.TestPoints, log.Features, log.Classes)
	return err
}

// LoadTrainingLog returns training runs, newest first.
func (d *DB) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := d.conn.QueryContext(ctx, `
        SELECT model_version, model_name, accuracy, precision, recall,
               trained_at, data_points, test_points, features, classes
        FROM training_log
        ORDER BY trained_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelVersion, &log.ModelName, &log.Accuracy, &log.Precision, &log.Recall,
			&log.TrainedAt, &log.DataPoints, &log.TestPoints, &log.Features, &log.Classes); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

type PredictionLog struct {
	ModelVersion string
	District     string
	DayOfWeek    string
	Hour         int
	Label        string
	Confidence   float64
	Dropped      string
	Timestamp    time.Time
}

func (d *DB) SavePrediction(ctx context.Context, p PredictionLog) error {
	_, err := d.conn.ExecContext(ctx, `
        INSERT INTO predictions (
            model_version, district, day_of_week, hour, predicted_label, confidence, dropped, timestamp
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ModelVersion, p.District, p.DayOfWeek, p.Hour, p.Label, p.Confidence, p.Dropped, p.Timestamp.UTC())
	return err
}

func (d *DB) CountPredictions(ctx context.Context) (int, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	return n, err
}

func (d *DB) SaveBlob(ctx context.Context, key string, data []byte) error {
	_, err := d.conn.ExecContext(ctx, `
        INSERT INTO artifacts (artifact_key, data, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(artifact_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, data, time.Now().UTC())
	return err
}

func (d *DB) LoadBlob(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := d.conn.QueryRowContext(ctx, `SELECT data FROM artifacts WHERE artifact_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	return crime.IntPtr(int(v.Int64))
}
