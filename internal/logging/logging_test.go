package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_Levels(t *testing.T) {
	logger, err := New("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = New("loud", "json")
	assert.Error(t, err)
}

func TestNewObserved_RecordsFields(t *testing.T) {
	logger, logs := NewObserved()
	logger.Info("row imported", zap.String("award_number", "AA-100"))

	entries := logs.FilterMessage("row imported").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "AA-100", entries[0].ContextMap()["award_number"])
}
