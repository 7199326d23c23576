package pipeline

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crimewatch/crime"
)

const maxRetainedIssues = 1000

// CleaningRule fixes or rejects one record.
type CleaningRule interface {
	Apply(*crime.Record) (*crime.Record, error)
	Name() string
}

type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // low, medium, high
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Incident  string    `json:"incident"`
}

type DataCleaner struct {
	rules  []CleaningRule
	logger *zap.Logger

	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex
}

type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Corrected      int64            `json:"corrected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

func NewDataCleaner(logger *zap.Logger, rules ...CleaningRule) *DataCleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &DataCleaner{
		logger: logger,
		issues: make([]QualityIssue, 0),
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}
	for _, rule := range rules {
		cleaner.AddRule(rule)
	}
	return cleaner
}

// NewTrainingCleaner drops records missing a feature or the label.
func NewTrainingCleaner(logger *zap.Logger) *DataCleaner {
	return NewDataCleaner(logger,
		NewWhitespaceRule(),
		NewRequiredFieldsRule(crime.ColumnDistrict, crime.ColumnDayOfWeek, crime.ColumnHour, crime.ColumnOffenseCodeGroup),
		NewHourRangeRule(),
	)
}

// NewIngestionCleaner requires the columns the CSV loader has always required.
func NewIngestionCleaner(logger *zap.Logger) *DataCleaner {
	return NewDataCleaner(logger,
		NewWhitespaceRule(),
		NewRequiredFieldsRule(crime.ColumnHour, crime.ColumnMonth, crime.ColumnDayOfWeek, crime.ColumnOffenseCode),
	)
}

// NewDashboardCleaner only repairs values; it never drops a record.
func NewDashboardCleaner(logger *zap.Logger) *DataCleaner {
	return NewDataCleaner(logger,
		NewWhitespaceRule(),
		NewLocationRule(),
	)
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
	dc.logger.Debug("added cleaning rule", zap.String("rule", rule.Name()))
}

// Clean returns the kept records and the issues found. The input is not modified.
func (dc *DataCleaner) Clean(records []crime.Record) ([]crime.Record, []QualityIssue) {
	cleaned := make([]crime.Record, 0, len(records))
	var issues []QualityIssue

	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()

	for i := range records {
		dc.stats.TotalProcessed++

		original := records[i]
		record := original
		current := &record
		var recordIssues []QualityIssue
		corrected := false

		for _, rule := range dc.rules {
			result, err := rule.Apply(current)
			if err != nil {
				recordIssues = append(recordIssues, QualityIssue{
					Type:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Timestamp: time.Now(),
					Incident:  original.IncidentNumber,
				})
				dc.stats.Issues[rule.Name()]++
				break
			}
			if result != current {
				corrected = true
				current = result
			}
		}

		if len(recordIssues) > 0 {
			dc.stats.Rejected++
			issues = append(issues, recordIssues...)
			dc.retain(recordIssues)
			continue
		}
		if corrected {
			dc.stats.Corrected++
		}
		dc.stats.Passed++
		cleaned = append(cleaned, *current)
	}

	dc.stats.LastClean = time.Now()
	if dc.stats.Rejected > 0 {
		dc.logger.Debug("cleaning rejected records",
			zap.Int64("rejected", dc.stats.Rejected),
			zap.Any("by_rule", dc.stats.Issues))
	}
	return cleaned, issues
}

func (dc *DataCleaner) retain(issues []QualityIssue) {
	dc.issuesLock.Lock()
	defer dc.issuesLock.Unlock()

	dc.issues = append(dc.issues, issues...)
	if over := len(dc.issues) - maxRetainedIssues; over > 0 {
		dc.issues = append(dc.issues[:0:0], dc.issues[over:]...)
	}
}

func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// GetIssues returns up to limit of the most recent issues.
func (dc *DataCleaner) GetIssues(limit int) []QualityIssue {
	dc.issuesLock.RLock()
	defer dc.issuesLock.RUnlock()

	if limit <= 0 || limit > len(dc.issues) {
		limit = len(dc.issues)
	}

	issues := make([]QualityIssue, limit)
	copy(issues, dc.issues[len(dc.issues)-limit:])
	return issues
}

func (dc *DataCleaner) ClearIssues() {
	dc.issuesLock.Lock()
	defer dc.issuesLock.Unlock()

	dc.issues = make([]QualityIssue, 0)
}

type RequiredFieldsRule struct {
	Columns []string
}

func NewRequiredFieldsRule(columns ...string) *RequiredFieldsRule {
	return &RequiredFieldsRule{Columns: columns}
}

func (r *RequiredFieldsRule) Name() string {
	return "required_fields"
}

func (r *RequiredFieldsRule) Apply(record *crime.Record) (*crime.Record, error) {
	var missing []string
	for _, column := range r.Columns {
		if !record.Has(column) {
			missing = append(missing, column)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return record, nil
}

type HourRangeRule struct{}

func NewHourRangeRule() *HourRangeRule {
	return &HourRangeRule{}
}

func (r *HourRangeRule) Name() string {
	return "hour_range"
}

func (r *HourRangeRule) Apply(record *crime.Record) (*crime.Record, error) {
	if record.Hour == nil {
		return record, nil
	}
	if h := *record.Hour; h < crime.MinHour || h > crime.MaxHour {
		return nil, fmt.Errorf("hour %d out of range [%d, %d]", h, crime.MinHour, crime.MaxHour)
	}
	return record, nil
}

// WhitespaceRule trims values and treats blank ones as missing.
type WhitespaceRule struct{}

func NewWhitespaceRule() *WhitespaceRule {
	return &WhitespaceRule{}
}

func (r *WhitespaceRule) Name() string {
	return "whitespace"
}

func (r *WhitespaceRule) Apply(record *crime.Record) (*crime.Record, error) {
	fields := []*string{
		&record.District, &record.DayOfWeek, &record.OffenseCodeGroup,
		&record.OffenseDescription, &record.Street, &record.UCRPart,
	}
	dirty := false
	for _, f := range fields {
		if trimmed := strings.TrimSpace(*f); trimmed != *f {
			dirty = true
		}
	}
	if !dirty {
		return record, nil
	}
	fixed := *record
	for _, f := range []*string{
		&fixed.District, &fixed.DayOfWeek, &fixed.OffenseCodeGroup,
		&fixed.OffenseDescription, &fixed.Street, &fixed.UCRPart,
	} {
		*f = strings.TrimSpace(*f)
	}
	return &fixed, nil
}

// LocationRule clears invalid coordinates. The export uses (-1, -1) for unknown locations.
type LocationRule struct{}

func NewLocationRule() *LocationRule {
	return &LocationRule{}
}

func (r *LocationRule) Name() string {
	return "location"
}

func (r *LocationRule) Apply(record *crime.Record) (*crime.Record, error) {
	if !record.HasLocation() {
		if record.Lat == nil && record.Long == nil {
			return record, nil
		}
	} else if validLocation(*record.Lat, *record.Long) {
		return record, nil
	}
	fixed := *record
	fixed.Lat = nil
	fixed.Long = nil
	return &fixed, nil
}

func validLocation(lat, long float64) bool {
	if lat == -1 && long == -1 {
		return false
	}
	if lat == 0 && long == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}
