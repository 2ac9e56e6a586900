// Package schema provides the database models for the surveillance store.
// Raw form tables are created per configured form at setup time; the models
// here are the fixed tables shared by every deployment.
package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Location is one node of the canonical location tree.
type Location struct {
	ID                int       `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	Level             string    `gorm:"size:20;index;not null" json:"level"`
	ParentLocation    int       `gorm:"index" json:"parent_location"`
	PointLocation     string    `json:"point_location"`
	Area              string    `json:"area"`
	DeviceID          string    `json:"deviceid"`
	ClinicType        string    `gorm:"size:50" json:"clinic_type"`
	CaseType          string    `json:"case_type"`
	CaseReport        bool      `json:"case_report"`
	Population        int       `json:"population"`
	Other             string    `json:"other"`
	ServiceProvider   string    `json:"service_provider"`
	StartDate         time.Time `json:"start_date"`
	CountryLocationID int       `json:"country_location_id"`
}

// Device maps a reporting device id onto its tags.
type Device struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	DeviceID string `gorm:"uniqueIndex;size:100;not null" json:"device_id"`
	Tags     string `json:"tags"`
}

// AggregationVariable is one persisted rule catalogue entry.
type AggregationVariable struct {
	ID                 string `gorm:"primaryKey;size:100" json:"id"`
	PK                 int    `gorm:"column:pk;index" json:"pk"`
	Type               string `gorm:"size:50;index" json:"type"`
	Form               string `gorm:"size:100" json:"form"`
	DBColumn           string `gorm:"column:db_column" json:"db_column"`
	Method             string `gorm:"size:100" json:"method"`
	Condition          string `json:"condition"`
	Calculation        string `json:"calculation"`
	Category           string `json:"category"`
	VariableGroup      string `gorm:"column:variable_group;size:100" json:"group"`
	Priority           int    `json:"priority"`
	MultipleLink       string `gorm:"size:20" json:"multiple_link"`
	SecondaryCondition string `json:"secondary_condition"`
	Alert              bool   `json:"alert"`
	AlertType          string `gorm:"size:100" json:"alert_type"`
	Disregard          bool   `json:"disregard"`
}

// Data is one coded record. Uniqueness is (uuid, type).
type Data struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	UUID           string            `gorm:"size:250;uniqueIndex:idx_data_uuid_type;not null" json:"uuid"`
	Type           string            `gorm:"size:50;uniqueIndex:idx_data_uuid_type;index;not null" json:"type"`
	TypeName       string            `gorm:"size:100" json:"type_name"`
	Date           time.Time         `gorm:"index" json:"date"`
	EpiYear        int               `json:"epi_year"`
	EpiWeek        int               `json:"epi_week"`
	SubmissionDate time.Time         `json:"submission_date"`
	Country        int               `json:"country"`
	Zone           int               `json:"zone"`
	Region         int               `json:"region"`
	District       int               `json:"district"`
	Clinic         int               `gorm:"index" json:"clinic"`
	ClinicType     string            `gorm:"size:50" json:"clinic_type"`
	CaseType       string            `json:"case_type"`
	Tags           string            `json:"tags"`
	Geolocation    string            `json:"geolocation"`
	Variables      datatypes.JSONMap `gorm:"type:jsonb" json:"variables"`
	Categories     datatypes.JSONMap `gorm:"type:jsonb" json:"categories"`
	Links          datatypes.JSONMap `gorm:"type:jsonb" json:"links"`
}

// DisregardedData mirrors Data for records whose coding fired a disregard
// rule without an individual alert.
type DisregardedData struct {
	Data
}

func (DisregardedData) TableName() string {
	return "disregarded_data"
}

// Alert records one emitted alert notification.
type Alert struct {
	ID       uint              `gorm:"primaryKey" json:"id"`
	AlertID  string            `gorm:"size:50;index" json:"alert_id"`
	UUID     string            `gorm:"size:250" json:"uuid"`
	Reason   string            `gorm:"size:100" json:"reason"`
	Type     string            `gorm:"size:20" json:"type"`
	Date     time.Time         `json:"date"`
	Clinic   int               `json:"clinic"`
	Duration int               `json:"duration"`
	Details  datatypes.JSONMap `gorm:"type:jsonb" json:"details"`
	SentAt   time.Time         `json:"sent_at"`
}

// StepMonitoring times one pipeline stage over one chunk.
type StepMonitoring struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Step     string    `gorm:"size:100;index" json:"step"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Duration float64   `json:"duration"`
	N        int       `json:"n"`
}

func (StepMonitoring) TableName() string {
	return "step_monitoring"
}
