package model

import "time"

// TimeOff is an approved WFM time-off entry.
type TimeOff struct {
	WfmTimeOffID  string    `json:"wfmTimeOffId"`
	WfmEmployeeID string    `json:"wfmEmployeeId"`
	StartDate     time.Time `json:"startDate"`
	EndDate       time.Time `json:"endDate"`
	ReasonCode    string    `json:"reasonCode"`

	TeamsTimeOffID  string `json:"teamsTimeOffId,omitempty"`
	TeamsEmployeeID string `json:"teamsEmployeeId,omitempty"`
	TeamsReasonID   string `json:"teamsReasonId,omitempty"`
}

func (t *TimeOff) Key() string {
	return t.WfmTimeOffID
}

// CarryIDs copies the Teams ids whose WFM inputs are unchanged.
func (t *TimeOff) CarryIDs(from *TimeOff) {
	if from == nil {
		return
	}
	t.TeamsTimeOffID = from.TeamsTimeOffID
	if t.WfmEmployeeID == from.WfmEmployeeID {
		t.TeamsEmployeeID = from.TeamsEmployeeID
	}
	if t.ReasonCode == from.ReasonCode {
		t.TeamsReasonID = from.TeamsReasonID
	}
}

func (t *TimeOff) HasChanges(from *TimeOff) bool {
	if from == nil {
		return true
	}
	return !t.StartDate.Equal(from.StartDate) ||
		!t.EndDate.Equal(from.EndDate) ||
		t.WfmEmployeeID != from.WfmEmployeeID ||
		t.ReasonCode != from.ReasonCode
}

func (t *TimeOff) Canonicalize() {
	t.StartDate = t.StartDate.UTC()
	t.EndDate = t.EndDate.UTC()
}
