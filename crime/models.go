package crime

import (
	"errors"
	"fmt"
	"time"
)

// Dataset column names as they appear in the incident export.
const (
	ColumnIncidentNumber     = "INCIDENT_NUMBER"
	ColumnOffenseCode        = "OFFENSE_CODE"
	ColumnOffenseCodeGroup   = "OFFENSE_CODE_GROUP"
	ColumnOffenseDescription = "OFFENSE_DESCRIPTION"
	ColumnDistrict           = "DISTRICT"
	ColumnReportingArea      = "REPORTING_AREA"
	ColumnShooting           = "SHOOTING"
	ColumnOccurredOnDate     = "OCCURRED_ON_DATE"
	ColumnYear               = "YEAR"
	ColumnMonth              = "MONTH"
	ColumnDayOfWeek          = "DAY_OF_WEEK"
	ColumnHour               = "HOUR"
	ColumnUCRPart            = "UCR_PART"
	ColumnStreet             = "STREET"
	ColumnLat                = "Lat"
	ColumnLong               = "Long"
)

const (
	MinHour = 0
	MaxHour = 23
)

var ErrInvalidQuery = errors.New("invalid query")

// Days lists the day-of-week names in calendar order.
var Days = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Record is one incident row. Nullable numeric columns are pointers and
// empty strings mean the column was missing.
type Record struct {
	IncidentNumber     string     `json:"incident_number,omitempty" bson:"INCIDENT_NUMBER,omitempty"`
	OffenseCode        *int       `json:"offense_code,omitempty" bson:"OFFENSE_CODE,omitempty"`
	OffenseCodeGroup   string     `json:"offense_code_group,omitempty" bson:"OFFENSE_CODE_GROUP,omitempty"`
	OffenseDescription string     `json:"offense_description,omitempty" bson:"OFFENSE_DESCRIPTION,omitempty"`
	District           string     `json:"district,omitempty" bson:"DISTRICT,omitempty"`
	ReportingArea      string     `json:"reporting_area,omitempty" bson:"REPORTING_AREA,omitempty"`
	Shooting           bool       `json:"shooting,omitempty" bson:"SHOOTING,omitempty"`
	OccurredOn         *time.Time `json:"occurred_on,omitempty" bson:"OCCURRED_ON_DATE,omitempty"`
	Year               *int       `json:"year,omitempty" bson:"YEAR,omitempty"`
	Month              *int       `json:"month,omitempty" bson:"MONTH,omitempty"`
	DayOfWeek          string     `json:"day_of_week,omitempty" bson:"DAY_OF_WEEK,omitempty"`
	Hour               *int       `json:"hour,omitempty" bson:"HOUR,omitempty"`
	UCRPart            string     `json:"ucr_part,omitempty" bson:"UCR_PART,omitempty"`
	Street             string     `json:"street,omitempty" bson:"STREET,omitempty"`
	Lat                *float64   `json:"lat,omitempty" bson:"Lat,omitempty"`
	Long               *float64   `json:"long,omitempty" bson:"Long,omitempty"`
}

// Has reports whether the named column carries a value.
func (r Record) Has(column string) bool {
	switch column {
	case ColumnIncidentNumber:
		return r.IncidentNumber != ""
	case ColumnOffenseCode:
		return r.OffenseCode != nil
	case ColumnOffenseCodeGroup:
		return r.OffenseCodeGroup != ""
	case ColumnOffenseDescription:
		return r.OffenseDescription != ""
	case ColumnDistrict:
		return r.District != ""
	case ColumnReportingArea:
		return r.ReportingArea != ""
	case ColumnShooting:
		return true
	case ColumnOccurredOnDate:
		return r.OccurredOn != nil
	case ColumnYear:
		return r.Year != nil
	case ColumnMonth:
		return r.Month != nil
	case ColumnDayOfWeek:
		return r.DayOfWeek != ""
	case ColumnHour:
		return r.Hour != nil
	case ColumnUCRPart:
		return r.UCRPart != ""
	case ColumnStreet:
		return r.Street != ""
	case ColumnLat:
		return r.Lat != nil
	case ColumnLong:
		return r.Long != nil
	default:
		return false
	}
}

// HasLocation reports whether the record can be placed on a map.
func (r Record) HasLocation() bool {
	return r.Lat != nil && r.Long != nil
}

// Query is a single prediction request.
type Query struct {
	District  string `json:"district"`
	DayOfWeek string `json:"day_of_week"`
	Hour      int    `json:"hour"`
}

// Validate rejects hours outside 0-23. District and day are free-form:
// values never seen in training simply encode to all-zero indicators.
func (q Query) Validate() error {
	if q.Hour < MinHour || q.Hour > MaxHour {
		return fmt.Errorf("%w: hour %d out of range [%d,%d]", ErrInvalidQuery, q.Hour, MinHour, MaxHour)
	}
	return nil
}

// IsDay reports whether name is one of the seven day-of-week names.
func IsDay(name string) bool {
	for _, d := range Days {
		if d == name {
			return true
		}
	}
	return false
}

func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
