package sandbox

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/shiftsync/internal/model"
)

// Fixture seeds a Source and a Destination for one business unit.
type Fixture struct {
	BusinessUnit string `yaml:"business_unit"`

	Employees []FixtureEmployee `yaml:"employees,omitempty"`
	Jobs      []FixtureJob      `yaml:"jobs,omitempty"`

	// Users maps login names to destination user ids.
	Users map[string]string `yaml:"users,omitempty"`
	// Reasons maps WFM reason codes to destination time-off reason ids.
	Reasons map[string]string `yaml:"reasons,omitempty"`

	Shifts       []FixtureShift        `yaml:"shifts,omitempty"`
	OpenShifts   []FixtureShift        `yaml:"open_shifts,omitempty"`
	TimeOff      []FixtureTimeOff      `yaml:"time_off,omitempty"`
	Availability []FixtureAvailability `yaml:"availability,omitempty"`
}

type FixtureEmployee struct {
	ID    string `yaml:"id"`
	Login string `yaml:"login"`
	Name  string `yaml:"name,omitempty"`
}

type FixtureJob struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	Department string `yaml:"department"`
	Theme      string `yaml:"theme,omitempty"`
}

type FixtureShift struct {
	ID         string            `yaml:"id"`
	Employee   string            `yaml:"employee,omitempty"`
	Job        string            `yaml:"job"`
	Start      time.Time         `yaml:"start"`
	End        time.Time         `yaml:"end"`
	Quantity   int               `yaml:"quantity,omitempty"`
	Activities []FixtureActivity `yaml:"activities,omitempty"`
}

type FixtureActivity struct {
	Code  string    `yaml:"code"`
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

type FixtureTimeOff struct {
	ID       string    `yaml:"id"`
	Employee string    `yaml:"employee"`
	Reason   string    `yaml:"reason"`
	Start    time.Time `yaml:"start"`
	End      time.Time `yaml:"end"`
}

type FixtureAvailability struct {
	Employee string        `yaml:"employee"`
	TimeZone string        `yaml:"time_zone"`
	Items    []FixtureSlot `yaml:"items"`
}

type FixtureSlot struct {
	Day   string `yaml:"day"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// LoadFixture reads and parses a fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a fixture, rejecting unknown fields.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid fixture: %w", err)
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	if f.BusinessUnit == "" {
		return fmt.Errorf("business_unit is required")
	}
	seen := make(map[string]bool)
	for i, s := range append(append([]FixtureShift{}, f.Shifts...), f.OpenShifts...) {
		if s.ID == "" {
			return fmt.Errorf("shift %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("shift %s: duplicate id", s.ID)
		}
		seen[s.ID] = true
		if !s.End.After(s.Start) {
			return fmt.Errorf("shift %s: end must be after start", s.ID)
		}
	}
	for i, t := range f.TimeOff {
		if t.ID == "" || t.Employee == "" {
			return fmt.Errorf("time_off %d: id and employee are required", i)
		}
	}
	for i, a := range f.Availability {
		if a.Employee == "" {
			return fmt.Errorf("availability %d: employee is required", i)
		}
	}
	return nil
}

// Apply seeds src and dst with the fixture. Either may be nil.
func (f *Fixture) Apply(src *Source, dst *Destination) {
	if src != nil {
		for _, e := range f.Employees {
			src.AddEmployee(model.Employee{WfmEmployeeID: e.ID, LoginName: e.Login, DisplayName: e.Name})
		}
		for _, j := range f.Jobs {
			src.AddJob(model.JobInfo{WfmJobID: j.ID, Name: j.Name, DepartmentName: j.Department, ThemeCode: j.Theme})
		}
		src.SetShifts(f.BusinessUnit, f.shifts(f.Shifts)...)
		src.SetOpenShifts(f.BusinessUnit, f.shifts(f.OpenShifts)...)

		timeOff := make([]*model.TimeOff, 0, len(f.TimeOff))
		for _, t := range f.TimeOff {
			timeOff = append(timeOff, &model.TimeOff{
				WfmTimeOffID:  t.ID,
				WfmEmployeeID: t.Employee,
				ReasonCode:    t.Reason,
				StartDate:     t.Start,
				EndDate:       t.End,
			})
		}
		src.SetTimeOff(f.BusinessUnit, timeOff...)

		avail := make([]*model.Availability, 0, len(f.Availability))
		for _, a := range f.Availability {
			rec := &model.Availability{WfmEmployeeID: a.Employee, TimeZone: a.TimeZone}
			for _, it := range a.Items {
				rec.Items = append(rec.Items, model.AvailabilityItem{DayOfWeek: it.Day, StartTime: it.Start, EndTime: it.End})
			}
			avail = append(avail, rec)
		}
		src.SetAvailability(f.BusinessUnit, avail...)
	}
	if dst != nil {
		for login, id := range f.Users {
			dst.AddUser(login, id)
		}
		for code, id := range f.Reasons {
			dst.AddReason(code, id)
		}
	}
}

func (f *Fixture) shifts(in []FixtureShift) []*model.Shift {
	out := make([]*model.Shift, 0, len(in))
	for _, s := range in {
		shift := &model.Shift{
			WfmShiftID:    s.ID,
			WfmEmployeeID: s.Employee,
			WfmJobID:      s.Job,
			StartDate:     s.Start,
			EndDate:       s.End,
			Quantity:      s.Quantity,
		}
		for _, a := range s.Activities {
			shift.Activities = append(shift.Activities, model.Activity{Code: a.Code, StartDate: a.Start, EndDate: a.End})
		}
		out = append(out, shift)
	}
	return out
}
