package model

import "time"

// Credentials are the per-team secrets used to reach the WFM backend.
type Credentials struct {
	BaseURL  string `json:"baseUrl,omitempty"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// WeekQuery scopes a WFM fetch to one week of one business unit.
type WeekQuery struct {
	BusinessUnitID string    `json:"businessUnitId"`
	WeekStart      time.Time `json:"weekStart"`
	WeekEnd        time.Time `json:"weekEnd"`
	TimeZone       string    `json:"timeZone"`
}

// Employee is the WFM view of an employee.
type Employee struct {
	WfmEmployeeID string `json:"wfmEmployeeId"`
	LoginName     string `json:"loginName"`
	DisplayName   string `json:"displayName,omitempty"`
}

// JobInfo is the WFM view of a job, including the department it belongs to.
type JobInfo struct {
	WfmJobID       string `json:"wfmJobId"`
	Name           string `json:"name"`
	DepartmentName string `json:"departmentName"`
	ThemeCode      string `json:"themeCode,omitempty"`
}

// ProvisionStatus is the destination schedule's provisioning state.
type ProvisionStatus string

const (
	ProvisionNotStarted ProvisionStatus = "NotStarted"
	ProvisionRunning    ProvisionStatus = "Running"
	ProvisionCompleted  ProvisionStatus = "Completed"
	ProvisionFailed     ProvisionStatus = "Failed"
)

// Schedule is the destination-side schedule of a team.
type Schedule struct {
	Exists          bool            `json:"exists"`
	Enabled         bool            `json:"enabled"`
	TimeZone        string          `json:"timeZone,omitempty"`
	ProvisionStatus ProvisionStatus `json:"provisionStatus"`
}

// Provisioned reports whether the schedule can accept writes.
func (s Schedule) Provisioned() bool {
	return s.Exists && s.ProvisionStatus == ProvisionCompleted
}

// RequestRef identifies a pending destination request (swap, offer, time off).
type RequestRef struct {
	RequestType string `json:"requestType"`
	RequestID   string `json:"requestId"`
}
