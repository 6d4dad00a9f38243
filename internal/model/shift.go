package model

import (
	"sort"
	"time"
)

// Activity is a sub-segment of a shift (break, meal, training, ...).
type Activity struct {
	Code      string    `json:"code"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Job is a job/department transfer segment inside a shift.
type Job struct {
	WfmJobID  string    `json:"wfmJobId"`
	Code      string    `json:"code,omitempty"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// Shift is a WFM shift or open shift and the Teams ids it maps to.
//
// Quantity is only greater than one for open shifts that represent several
// open slots. The Teams ids are empty until resolved or pushed.
type Shift struct {
	WfmShiftID    string     `json:"wfmShiftId"`
	WfmEmployeeID string     `json:"wfmEmployeeId,omitempty"`
	WfmJobID      string     `json:"wfmJobId"`
	StartDate     time.Time  `json:"startDate"`
	EndDate       time.Time  `json:"endDate"`
	Activities    []Activity `json:"activities,omitempty"`
	Jobs          []Job      `json:"jobs,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`

	TeamsShiftID           string `json:"teamsShiftId,omitempty"`
	TeamsEmployeeID        string `json:"teamsEmployeeId,omitempty"`
	TeamsSchedulingGroupID string `json:"teamsSchedulingGroupId,omitempty"`

	DepartmentName string `json:"departmentName,omitempty"`
	JobName        string `json:"jobName,omitempty"`
	ThemeCode      string `json:"themeCode,omitempty"`
}

// Key returns the WFM shift id.
func (s *Shift) Key() string {
	return s.WfmShiftID
}

// CarryIDs copies destination-side ids from the previously tracked version
// of the same shift. An id is only copied when the WFM field it was resolved
// from is unchanged; otherwise it stays empty and is resolved again.
func (s *Shift) CarryIDs(from *Shift) {
	if from == nil {
		return
	}
	s.TeamsShiftID = from.TeamsShiftID
	if s.WfmEmployeeID == from.WfmEmployeeID {
		s.TeamsEmployeeID = from.TeamsEmployeeID
	}
	if s.WfmJobID == from.WfmJobID {
		s.TeamsSchedulingGroupID = from.TeamsSchedulingGroupID
		s.DepartmentName = from.DepartmentName
		s.JobName = from.JobName
		s.ThemeCode = from.ThemeCode
	}
}

// HasChanges reports whether s differs from the tracked version in any
// field that is pushed to the destination. Nested lists are compared by
// position; Canonicalize must have been applied to both sides.
func (s *Shift) HasChanges(from *Shift) bool {
	if from == nil {
		return true
	}
	if !s.StartDate.Equal(from.StartDate) || !s.EndDate.Equal(from.EndDate) {
		return true
	}
	if s.WfmEmployeeID != from.WfmEmployeeID || s.WfmJobID != from.WfmJobID {
		return true
	}
	if s.Quantity != from.Quantity {
		return true
	}
	if len(s.Activities) != len(from.Activities) || len(s.Jobs) != len(from.Jobs) {
		return true
	}
	for i, a := range s.Activities {
		b := from.Activities[i]
		if a.Code != b.Code || !a.StartDate.Equal(b.StartDate) || !a.EndDate.Equal(b.EndDate) {
			return true
		}
	}
	for i, j := range s.Jobs {
		k := from.Jobs[i]
		if j.WfmJobID != k.WfmJobID || !j.StartDate.Equal(k.StartDate) || !j.EndDate.Equal(k.EndDate) {
			return true
		}
	}
	return false
}

// Canonicalize normalises times to UTC and orders nested lists by start
// time, then code, so positional comparison is stable across fetches.
func (s *Shift) Canonicalize() {
	s.StartDate = s.StartDate.UTC()
	s.EndDate = s.EndDate.UTC()
	for i := range s.Activities {
		s.Activities[i].StartDate = s.Activities[i].StartDate.UTC()
		s.Activities[i].EndDate = s.Activities[i].EndDate.UTC()
	}
	for i := range s.Jobs {
		s.Jobs[i].StartDate = s.Jobs[i].StartDate.UTC()
		s.Jobs[i].EndDate = s.Jobs[i].EndDate.UTC()
	}
	sort.SliceStable(s.Activities, func(i, j int) bool {
		a, b := s.Activities[i], s.Activities[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.Code < b.Code
	})
	sort.SliceStable(s.Jobs, func(i, j int) bool {
		a, b := s.Jobs[i], s.Jobs[j]
		if !a.StartDate.Equal(b.StartDate) {
			return a.StartDate.Before(b.StartDate)
		}
		return a.WfmJobID < b.WfmJobID
	})
}
