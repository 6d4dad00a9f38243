package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequentialIDs(t *testing.T) {
	ids := NewSequentialIDs("action")
	assert.Equal(t, "action-1", ids.Generate())
	assert.Equal(t, "action-2", ids.Generate())
}

func TestSequentialIDs_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "test-1", NewSequentialIDs("").Generate())
}
