package dataset

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crimewatch/crime"
)

var postgresColumns = []string{
	"incident_number", "offense_code", "offense_code_group", "offense_description",
	"district", "reporting_area", "shooting", "occurred_on", "year", "month",
	"day_of_week", "hour", "ucr_part", "street", "lat", "long",
}

type PostgresSource struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresSource(ctx context.Context, dsn, table string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresSource{pool: pool, table: table}, nil
}

func (s *PostgresSource) quotedTable() string {
	return pgx.Identifier{s.table}.Sanitize()
}

func (s *PostgresSource) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+s.quotedTable()+` (
			id BIGSERIAL PRIMARY KEY,
			incident_number TEXT,
			offense_code INTEGER,
			offense_code_group TEXT,
			offense_description TEXT,
			district TEXT,
			reporting_area TEXT,
			shooting BOOLEAN NOT NULL DEFAULT FALSE,
			occurred_on TIMESTAMPTZ,
			year INTEGER,
			month INTEGER,
			day_of_week TEXT,
			hour INTEGER,
			ucr_part TEXT,
			street TEXT,
			lat DOUBLE PRECISION,
			long DOUBLE PRECISION
		)`)
	return err
}

func (s *PostgresSource) Fetch(ctx context.Context) ([]crime.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT incident_number, offense_code, offense_code_group, offense_description,
		       district, reporting_area, shooting, occurred_on, year, month,
		       day_of_week, hour, ucr_part, street, lat, long
		FROM `+s.quotedTable()+`
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	var records []crime.Record
	for rows.Next() {
		var (
			r                                          crime.Record
			incident, group, desc, district, area, day *string
			ucr, street                                *string
		)
		if err := rows.Scan(&incident, &r.OffenseCode, &group, &desc, &district, &area, &r.Shooting, &r.OccurredOn,
			&r.Year, &r.Month, &day, &r.Hour, &ucr, &street, &r.Lat, &r.Long); err != nil {
			return nil, err
		}
		r.IncidentNumber = deref(incident)
		r.OffenseCodeGroup = deref(group)
		r.OffenseDescription = deref(desc)
		r.District = deref(district)
		r.ReportingArea = deref(area)
		r.DayOfWeek = deref(day)
		r.UCRPart = deref(ucr)
		r.Street = deref(street)
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertRecords bulk loads with COPY.
func (s *PostgresSource) InsertRecords(ctx context.Context, records []crime.Record) (int, error) {
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, postgresColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{
				optional(r.IncidentNumber), r.OffenseCode, optional(r.OffenseCodeGroup), optional(r.OffenseDescription),
				optional(r.District), optional(r.ReportingArea), r.Shooting, r.OccurredOn, r.Year, r.Month,
				optional(r.DayOfWeek), r.Hour, optional(r.UCRPart), optional(r.Street), r.Lat, r.Long,
			}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", s.table, err)
	}
	return int(n), nil
}

func (s *PostgresSource) Close() {
	s.pool.Close()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
