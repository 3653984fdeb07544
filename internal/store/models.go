package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the progress state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
)

// Statuses lists every accepted status in display order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusCompleted, StatusBlocked}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every accepted priority from lowest to highest.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// DateLayout is the storage and wire format of Date.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time of day.
type Date struct {
	time.Time
}

// NewDate returns the given calendar date.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// Scan accepts the text the schema stores, or a time the driver already parsed.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = NewDate(v.Year(), v.Month(), v.Day())
		return nil
	case string:
		return d.scanText(v)
	case []byte:
		return d.scanText(string(v))
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}

func (d *Date) scanText(value string) error {
	if len(value) > len(DateLayout) {
		value = value[:len(DateLayout)]
	}
	parsed, err := ParseDate(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value stores the date as YYYY-MM-DD text.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Project groups tasks.
type Project struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ProjectInput carries the writable fields of a project.
type ProjectInput struct {
	Name        string
	Description string
}

// Normalize trims the input and checks the required fields.
func (in ProjectInput) Normalize() (ProjectInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, invalid("project name is required")
	}
	return in, nil
}

// Task is one unit of work, optionally inside a project.
type Task struct {
	ID           int64     `db:"id" json:"id"`
	ProjectID    *int64    `db:"project_id" json:"project_id"`
	Name         string    `db:"name" json:"name"`
	Description  string    `db:"description" json:"description,omitempty"`
	Status       Status    `db:"status" json:"status"`
	Priority     Priority  `db:"priority" json:"priority"`
	StartDate    *Date     `db:"start_date" json:"start_date,omitempty"`
	EndDate      *Date     `db:"end_date" json:"end_date,omitempty"`
	DurationDays *int64    `db:"duration_days" json:"duration_days,omitempty"`
	PositionX    float64   `db:"position_x" json:"position_x"`
	PositionY    float64   `db:"position_y" json:"position_y"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Nullable task fields that an update can clear.
const (
	FieldProjectID    = "project_id"
	FieldStartDate    = "start_date"
	FieldEndDate      = "end_date"
	FieldDurationDays = "duration_days"
)

var clearable = map[string]bool{
	FieldProjectID:    true,
	FieldStartDate:    true,
	FieldEndDate:      true,
	FieldDurationDays: true,
}

// TaskInput carries the writable fields of a task.
// Empty Status or Priority leave the stored value alone (the schema default on create).
// Nil pointers do the same, unless the field is named in Clear, which sets it to NULL.
type TaskInput struct {
	ProjectID    *int64
	Name         string
	Description  string
	Status       Status
	Priority     Priority
	StartDate    *Date
	EndDate      *Date
	DurationDays *int64
	PositionX    *float64
	PositionY    *float64
	Clear        []string
}

// Clears reports whether field is named in Clear.
func (in TaskInput) Clears(field string) bool {
	for _, f := range in.Clear {
		if f == field {
			return true
		}
	}
	return false
}

// Normalize trims the input and checks the application-level invariants.
// Duration is never derived from the dates.
func (in TaskInput) Normalize() (TaskInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Status = Status(strings.TrimSpace(string(in.Status)))
	in.Priority = Priority(strings.TrimSpace(string(in.Priority)))

	if in.Name == "" {
		return in, invalid("task name is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return in, invalid("unknown task status %q", in.Status)
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return in, invalid("unknown task priority %q", in.Priority)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(in.StartDate.Time) {
		return in, invalid("end date %s is before start date %s", in.EndDate, in.StartDate)
	}
	if in.DurationDays != nil && *in.DurationDays < 0 {
		return in, invalid("duration must not be negative")
	}
	if in.ProjectID != nil && *in.ProjectID <= 0 {
		return in, invalid("project id must be positive")
	}
	for _, f := range in.Clear {
		if !clearable[f] {
			return in, invalid("field %q cannot be cleared", f)
		}
	}
	set := map[string]bool{
		FieldProjectID:    in.ProjectID != nil,
		FieldStartDate:    in.StartDate != nil,
		FieldEndDate:      in.EndDate != nil,
		FieldDurationDays: in.DurationDays != nil,
	}
	for _, f := range in.Clear {
		if set[f] {
			return in, invalid("field %q is both set and cleared", f)
		}
	}
	return in, nil
}
