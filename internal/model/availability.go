package model

import "sort"

// AvailabilityItem is one recurring available slot. Times are "15:04" in
// the record's time zone.
type AvailabilityItem struct {
	DayOfWeek string `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// Availability is an employee's recurring availability. There is at most
// one per employee, so the WFM employee id is the key.
type Availability struct {
	WfmEmployeeID string             `json:"wfmEmployeeId"`
	TimeZone      string             `json:"timeZone"`
	Items         []AvailabilityItem `json:"items"`

	TeamsAvailabilityID string `json:"teamsAvailabilityId,omitempty"`
	TeamsEmployeeID     string `json:"teamsEmployeeId,omitempty"`
}

func (a *Availability) Key() string {
	return a.WfmEmployeeID
}

func (a *Availability) CarryIDs(from *Availability) {
	if from == nil {
		return
	}
	a.TeamsAvailabilityID = from.TeamsAvailabilityID
	a.TeamsEmployeeID = from.TeamsEmployeeID
}

func (a *Availability) HasChanges(from *Availability) bool {
	if from == nil {
		return true
	}
	if a.TimeZone != from.TimeZone || len(a.Items) != len(from.Items) {
		return true
	}
	for i, it := range a.Items {
		if it != from.Items[i] {
			return true
		}
	}
	return false
}

var weekdayOrder = map[string]int{
	"sunday": 0, "monday": 1, "tuesday": 2, "wednesday": 3,
	"thursday": 4, "friday": 5, "saturday": 6,
}

func (a *Availability) Canonicalize() {
	sort.SliceStable(a.Items, func(i, j int) bool {
		x, y := a.Items[i], a.Items[j]
		dx, dy := weekdayOrder[lower(x.DayOfWeek)], weekdayOrder[lower(y.DayOfWeek)]
		if dx != dy {
			return dx < dy
		}
		return x.StartTime < y.StartTime
	})
}
