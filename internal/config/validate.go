package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/shiftsync/internal/model"
)

// Configuration error codes (E200-E209)
const (
	ErrSchema         = "E200" // value rejected by the schema
	ErrWeekday        = "E201" // unknown start_day_of_week
	ErrEntity         = "E202" // unknown or duplicate entity type
	ErrDuration       = "E203" // duration must be positive
	ErrSchemaUnloaded = "E209" // embedded schema failed to compile
)

//go:embed schema.cue
var schemaSource []byte

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

// ValidationError is one problem found in the configuration.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Error collects every problem found by Validate.
type Error struct {
	Problems []ValidationError
}

func (e *Error) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Validate checks c against the embedded schema and the rules the schema
// cannot express. It reports every problem rather than the first one.
func (c *Config) Validate() error {
	problems := c.schemaProblems()
	problems = append(problems, c.semanticProblems()...)
	if len(problems) == 0 {
		return nil
	}
	return &Error{Problems: problems}
}

func loadSchema() {
	schemaCtx = cuecontext.New()
	v := schemaCtx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if v.Err() != nil {
		schemaErr = v.Err()
		return
	}
	schemaDef = v.LookupPath(cue.ParsePath("#Config"))
	schemaErr = schemaDef.Err()
}

func (c *Config) schemaProblems() []ValidationError {
	schemaOnce.Do(loadSchema)
	if schemaErr != nil {
		return []ValidationError{{Field: "schema", Message: schemaErr.Error(), Code: ErrSchemaUnloaded}}
	}
	data, err := json.Marshal(c)
	if err != nil {
		return []ValidationError{{Field: "config", Message: err.Error(), Code: ErrSchema}}
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()
	v := schemaDef.Unify(schemaCtx.CompileBytes(data, cue.Filename("config.json")))
	err = v.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		path := e.Path()
		if len(path) > 0 && path[0] == "#Config" {
			path = path[1:]
		}
		out = append(out, ValidationError{
			Field:   strings.Join(path, "."),
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchema,
		})
	}
	return out
}

func (c *Config) semanticProblems() []ValidationError {
	var out []ValidationError
	if _, err := model.ParseWeekday(c.Sync.StartDayOfWeek); err != nil {
		out = append(out, ValidationError{Field: "sync.start_day_of_week", Message: err.Error(), Code: ErrWeekday})
	}

	if len(c.Sync.Entities) == 0 {
		out = append(out, ValidationError{Field: "sync.entities", Message: "at least one entity type is required", Code: ErrEntity})
	}
	seen := make(map[model.EntityType]bool)
	for _, name := range c.Sync.Entities {
		et, err := model.ParseEntityType(name)
		if err != nil {
			out = append(out, ValidationError{Field: "sync.entities", Message: err.Error(), Code: ErrEntity})
			continue
		}
		if seen[et] {
			out = append(out, ValidationError{Field: "sync.entities", Message: fmt.Sprintf("%s listed twice", et), Code: ErrEntity})
		}
		seen[et] = true
	}

	positive := []struct {
		field string
		d     Duration
	}{
		{"sync.frequency", c.Sync.Frequency},
		{"provisioning.poll_interval", c.Provisioning.PollInterval},
		{"engine.poll_interval", c.Engine.PollInterval},
		{"engine.lock_timeout", c.Engine.LockTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			out = append(out, ValidationError{Field: p.field, Message: "must be positive", Code: ErrDuration})
		}
	}
	return out
}
