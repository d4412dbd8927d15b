package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsoniter "github.com/json-iterator/go"
)

func TestNewWithOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, "debug", "json")

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.WithField("book_id", "b-1").Info("book borrowed")

	var entry map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "book borrowed", entry["msg"])
	assert.Equal(t, "b-1", entry["book_id"])
}

func TestNewWithOutput_UnknownLevel(t *testing.T) {
	logger := NewWithOutput(&bytes.Buffer{}, "chatty", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestServiceLogger_UsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	requestLogger := NewWithOutput(&buf, "info", "json").WithField("request_id", "r-42")
	ctx := ContextWithLogger(context.Background(), requestLogger)

	ServiceLogger(ctx, Discard(), "CirculationService", "Borrow").Info("done")

	var entry map[string]any
	require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "r-42", entry["request_id"])
	assert.Equal(t, "CirculationService", entry["service"])
	assert.Equal(t, "Borrow", entry["operation"])
}
