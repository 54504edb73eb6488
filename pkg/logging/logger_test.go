package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				Level:       "info",
				Format:      "json",
				Output:      "stdout",
				ServiceName: "test-service",
				Version:     "1.0.0",
			},
			wantErr: false,
		},
		{
			name: "invalid log level",
			config: &Config{
				Level:  "invalid",
				Format: "json",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name: "invalid format",
			config: &Config{
				Level:  "info",
				Format: "invalid",
				Output: "stdout",
			},
			wantErr: true,
		},
		{
			name:    "nil config uses defaults",
			config:  nil,
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, logger)
			}
		})
	}
}

func newBufferedLogger(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()
	logger, err := NewLogger(&Config{
		Level:       level,
		Format:      format,
		Output:      "stdout",
		ServiceName: "test-service",
		Version:     "1.0.0",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	return logger, &buf
}

func TestLogger_WithContext(t *testing.T) {
	logger, buf := newBufferedLogger(t, "info", "json")

	ctx := WithCorrelationID(context.Background(), "test-correlation-id")
	ctx = WithTaskID(ctx, "task-42")

	logger.WithContext(ctx).Info("test message")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "test-correlation-id", logEntry["correlation_id"])
	assert.Equal(t, "task-42", logEntry["task_id"])
	assert.Equal(t, "test-service", logEntry["service"])
	assert.Equal(t, "1.0.0", logEntry["version"])
	assert.Equal(t, "test message", logEntry["message"])
}

func TestLogger_KeyValueSugar(t *testing.T) {
	logger, buf := newBufferedLogger(t, "info", "json")

	logger.Info("task started", "task_id", "t-1", "attempt", 2)

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "task started", logEntry["message"])
	assert.Equal(t, "t-1", logEntry["task_id"])
	assert.Equal(t, float64(2), logEntry["attempt"])
}

func TestCorrelationIDFunctions(t *testing.T) {
	id1 := NewCorrelationID()
	id2 := NewCorrelationID()
	assert.NotEmpty(t, id1)
	assert.NotEmpty(t, id2)
	assert.NotEqual(t, id1, id2)

	ctx := WithCorrelationID(context.Background(), "test-correlation-id")
	assert.Equal(t, "test-correlation-id", GetCorrelationID(ctx))
	assert.Empty(t, GetCorrelationID(context.Background()))
}

func TestTaskIDFunctions(t *testing.T) {
	ctx := WithTaskID(context.Background(), "task-123")
	assert.Equal(t, "task-123", GetTaskID(ctx))
	assert.Empty(t, GetTaskID(context.Background()))
}

func TestLogger_WithFields(t *testing.T) {
	logger, buf := newBufferedLogger(t, "info", "json")

	logger.WithFields(logrus.Fields{
		"custom_field": "custom_value",
		"number_field": 42,
	}).Info("test message with fields")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, "custom_value", logEntry["custom_field"])
	assert.Equal(t, float64(42), logEntry["number_field"])
	assert.Equal(t, "test-service", logEntry["service"])
	assert.Equal(t, "1.0.0", logEntry["version"])
}

func TestLogger_WithError(t *testing.T) {
	logger, buf := newBufferedLogger(t, "info", "json")

	testErr := assert.AnError
	logger.WithError(testErr).Error("error occurred")

	var logEntry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))

	assert.Equal(t, testErr.Error(), logEntry["error"])
	assert.Contains(t, logEntry["error_type"], "errors.errorString")
}

func TestLogger_TextFormat(t *testing.T) {
	logger, buf := newBufferedLogger(t, "info", "text")

	logger.WithFields(logrus.Fields{
		"test_field": "test_value",
	}).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "test message")
	assert.Contains(t, output, "test_field=test_value")
	assert.Contains(t, output, "service=test-service")
}

func BenchmarkLogger_WithContext(b *testing.B) {
	logger, err := NewLogger(&Config{
		Level:       "info",
		Format:      "json",
		Output:      "stdout",
		ServiceName: "test-service",
		Version:     "1.0.0",
	})
	require.NoError(b, err)
	logger.SetOutput(&bytes.Buffer{})

	ctx := WithCorrelationID(context.Background(), "test-correlation-id")
	ctx = WithTaskID(ctx, "task-1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.WithContext(ctx).Info("benchmark message")
	}
}
