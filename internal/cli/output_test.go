package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shiftsync/internal/config"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Success(teamResult{TeamID: "team-1", Action: "stopped"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"teamId": "team-1", "action": "stopped"}, resp.Data)
}

func TestOutputFormatter_TextSuccessUsesRenderer(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: buf}

	started := false
	require.NoError(t, formatter.Success(teamResult{TeamID: "team-1", Action: "subscribed", Started: &started}))
	assert.Equal(t, "team team-1: subscribed, workflow already running\n", buf.String())

	buf.Reset()
	require.NoError(t, formatter.Success("plain value"))
	assert.Equal(t, "plain value\n", buf.String())
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, formatter.Error(NewExitError(ExitCommandError, "bad flags")))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "X002", resp.Error.Code)
	assert.Equal(t, "bad flags", resp.Error.Message)
}

func TestOutputFormatter_ConfigErrorDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cfgErr := &config.Error{Problems: []config.ValidationError{
		{Field: "sync.entities", Message: "unknown entity type", Code: config.ErrEntity},
	}}
	require.NoError(t, formatter.Error(WrapExitError(ExitCommandError, "failed to load config", cfgErr)))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, config.ErrEntity, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextErrorGoesToErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "text", Writer: out, ErrWriter: errOut}

	require.NoError(t, formatter.Error(errors.New("boom")))
	assert.Empty(t, out.String())
	assert.Equal(t, "Error [X001]: boom\n", errOut.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}

			formatter.VerboseLog("loaded %d event(s)", 3)

			if tt.wantLog {
				assert.Contains(t, buf.String(), "loaded 3 event(s)")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "wrapped", errors.New("inner"))))

	wrapped := WrapExitError(ExitFailure, "outer", errors.New("inner"))
	assert.Equal(t, "outer: inner", wrapped.Error())
}
