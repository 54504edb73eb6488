package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frankfrisby/backbone/pkg/resilience"
)

func newTestMonitor() *Monitor {
	config := MonitorConfig{
		Circuit: resilience.CircuitBreakerConfig{
			FailureThreshold: 10,
			MonitorWindow:    time.Minute,
			RecoveryTimeout:  time.Minute,
		},
		CheckInterval: time.Minute,
	}
	return NewMonitor(config, nil, nil, nil)
}

func TestRegisterServiceStartsHealthy(t *testing.T) {
	mon := newTestMonitor()
	mon.RegisterService("database", nil)

	state, ok := mon.ServiceState("database")
	require.True(t, ok)
	assert.Equal(t, StatusHealthy, state.Status)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Equal(t, resilience.StateClosed, state.CircuitState)
}

func TestRecordCallDegradedAtThreeFailures(t *testing.T) {
	mon := newTestMonitor()
	mon.RegisterService("api", nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		mon.RecordCall(ctx, "api", false, errors.New("refused"))
	}
	state, _ := mon.ServiceState("api")
	assert.Equal(t, StatusHealthy, state.Status, "two failures must not degrade")

	mon.RecordCall(ctx, "api", false, errors.New("refused"))
	state, _ = mon.ServiceState("api")
	assert.Equal(t, StatusDegraded, state.Status)
	assert.Equal(t, 3, state.ConsecutiveFailures)
	assert.Equal(t, "refused", state.LastError)
}

func TestRecordCallUnhealthyAtFiveFailures(t *testing.T) {
	mon := newTestMonitor()
	mon.RegisterService("api", nil)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		mon.RecordCall(ctx, "api", false, errors.New("refused"))
	}

	state, _ := mon.ServiceState("api")
	assert.Equal(t, StatusUnhealthy, state.Status)
}

func TestRecordCallSuccessResetsFailures(t *testing.T) {
	mon := newTestMonitor()
	mon.RegisterService("api", nil)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		mon.RecordCall(ctx, "api", false, errors.New("refused"))
	}
	mon.RecordCall(ctx, "api", true, nil)

	state, _ := mon.ServiceState("api")
	assert.Equal(t, StatusHealthy, state.Status)
	assert.Equal(t, 0, state.ConsecutiveFailures)
	assert.Equal(t, 1, state.ConsecutiveSuccesses)
	assert.Empty(t, state.LastError)
}

func TestExecuteWithCircuitRecordsOutcome(t *testing.T) {
	mon := newTestMonitor()
	mon.RegisterService("llm", nil)

	ctx := context.Background()
	result, err := mon.ExecuteWithCircuit(ctx, "llm", func(ctx context.Context) (interface{}, error) {
		return "response", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "response", result)

	_, err = mon.ExecuteWithCircuit(ctx, "llm", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("overloaded")
	})
	require.Error(t, err)

	state, _ := mon.ServiceState("llm")
	assert.Equal(t, uint64(2), state.Counts.Total)
	assert.Equal(t, uint64(1), state.Counts.Successes)
	assert.Equal(t, uint64(1), state.Counts.Failures)
	assert.Equal(t, 1, state.ConsecutiveFailures)
}

func TestExecuteWithCircuitAutoRegisters(t *testing.T) {
	mon := newTestMonitor()

	_, err := mon.ExecuteWithCircuit(context.Background(), "new-service", func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, ok := mon.ServiceState("new-service")
	assert.True(t, ok)
}

func TestExecuteWithCircuitFastFailWhenOpen(t *testing.T) {
	mon := NewMonitor(MonitorConfig{
		Circuit: resilience.CircuitBreakerConfig{
			FailureThreshold: 1,
			MonitorWindow:    time.Minute,
			RecoveryTimeout:  time.Minute,
		},
	}, nil, nil, nil)
	mon.RegisterService("flaky", nil)

	ctx := context.Background()
	_, err := mon.ExecuteWithCircuit(ctx, "flaky", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("down")
	})
	require.Error(t, err)

	invoked := false
	_, err = mon.ExecuteWithCircuit(ctx, "flaky", func(ctx context.Context) (interface{}, error) {
		invoked = true
		return nil, nil
	})
	assert.True(t, resilience.IsCircuitOpen(err))
	assert.False(t, invoked)

	state, _ := mon.ServiceState("flaky")
	assert.Equal(t, resilience.StateOpen, state.CircuitState)
	assert.Equal(t, uint64(1), state.Counts.Rejected)
}

func TestRunHealthChecks(t *testing.T) {
	mon := newTestMonitor()

	checked := false
	mon.RegisterService("good", func(ctx context.Context) error {
		checked = true
		return nil
	})
	mon.RegisterService("bad", func(ctx context.Context) error {
		return errors.New("probe failed")
	})

	mon.RunHealthChecks(context.Background())

	assert.True(t, checked)

	good, _ := mon.ServiceState("good")
	assert.Equal(t, StatusHealthy, good.Status)

	bad, _ := mon.ServiceState("bad")
	assert.Equal(t, StatusUnhealthy, bad.Status, "a failed probe marks the service unhealthy directly")
	assert.Equal(t, "probe failed", bad.LastError)
	assert.Equal(t, uint64(1), mon.HealthCheckFailures())
}

func TestSystemHealthAggregation(t *testing.T) {
	mon := newTestMonitor()
	ctx := context.Background()

	assert.Equal(t, StatusHealthy, mon.SystemHealth(), "no services means healthy")

	mon.RegisterService("a", nil)
	mon.RegisterService("b", nil)
	mon.RegisterService("c", nil)
	assert.Equal(t, StatusHealthy, mon.SystemHealth())

	// Degrade one of three: strict majority still healthy
	for i := 0; i < 3; i++ {
		mon.RecordCall(ctx, "c", false, errors.New("x"))
	}
	assert.Equal(t, StatusDegraded, mon.SystemHealth())

	// Degrade a second: one of three healthy is no longer a majority
	for i := 0; i < 3; i++ {
		mon.RecordCall(ctx, "b", false, errors.New("x"))
	}
	assert.Equal(t, StatusUnhealthy, mon.SystemHealth())
}

func TestAllServicesSnapshot(t *testing.T) {
	mon := newTestMonitor()
	mon.RegisterService("a", nil)
	mon.RegisterService("b", nil)

	states := mon.AllServices()
	assert.Len(t, states, 2)

	names := map[string]bool{}
	for _, s := range states {
		names[s.Name] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
}
