package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"crimewatch/crime"
)

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339,
	"2006-01-02",
	"1/2/2006 15:04",
}

// CSVSource reads the incident export. Files that are not valid UTF-8 are
// decoded as Latin-1.
type CSVSource struct {
	Path string
}

func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

func (s *CSVSource) Fetch(ctx context.Context) ([]crime.Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return ParseCSV(ctx, data)
}

// ParseCSV decodes a header-led CSV document. Unknown columns are ignored
// and unparseable cells are treated as missing.
func ParseCSV(ctx context.Context, data []byte) ([]crime.Record, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("decode latin1: %w", err)
		}
		data = decoded
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var records []crime.Record
	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		get := func(column string) string {
			i, ok := index[column]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		records = append(records, rowToRecord(get))
	}
	return records, nil
}

func rowToRecord(get func(string) string) crime.Record {
	return crime.Record{
		IncidentNumber:     get(crime.ColumnIncidentNumber),
		OffenseCode:        parseInt(get(crime.ColumnOffenseCode)),
		OffenseCodeGroup:   get(crime.ColumnOffenseCodeGroup),
		OffenseDescription: get(crime.ColumnOffenseDescription),
		District:           get(crime.ColumnDistrict),
		ReportingArea:      get(crime.ColumnReportingArea),
		Shooting:           parseShooting(get(crime.ColumnShooting)),
		OccurredOn:         parseTime(get(crime.ColumnOccurredOnDate)),
		Year:               parseInt(get(crime.ColumnYear)),
		Month:              parseInt(get(crime.ColumnMonth)),
		DayOfWeek:          get(crime.ColumnDayOfWeek),
		Hour:               parseInt(get(crime.ColumnHour)),
		UCRPart:            get(crime.ColumnUCRPart),
		Street:             get(crime.ColumnStreet),
		Lat:                parseFloat(get(crime.ColumnLat)),
		Long:               parseFloat(get(crime.ColumnLong)),
	}
}

// parseInt accepts integral floats such as "9.0", which is how pandas
// writes integer columns that contain gaps.
func parseInt(s string) *int {
	if s == "" {
		return nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return crime.IntPtr(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f != math.Trunc(f) {
		return nil
	}
	return crime.IntPtr(int(f))
}

func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return crime.FloatPtr(f)
}

func parseShooting(s string) bool {
	switch strings.ToUpper(s) {
	case "Y", "YES", "1", "TRUE":
		return true
	}
	return false
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
