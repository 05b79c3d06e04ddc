package agents

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAgentConfig() *AgentConfig {
	return &AgentConfig{
		Name:         "test-agent",
		Type:         "technical",
		Version:      "1.0.0",
		Symbols:      []string{"BTC/USD"},
		StepInterval: 20 * time.Millisecond,
		Enabled:      true,
	}
}

func newTestAgent(t *testing.T) *BaseAgent {
	t.Helper()
	// Port 0 lets the metrics listener pick a free port
	agent := NewBaseAgent(testAgentConfig(), zerolog.Nop(), 0)
	require.NoError(t, agent.Initialize(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		agent.Shutdown(ctx) //nolint:errcheck
	})
	return agent
}

func TestBaseAgentAccessors(t *testing.T) {
	agent := newTestAgent(t)

	assert.Equal(t, "test-agent", agent.GetName())
	assert.Equal(t, "technical", agent.GetType())
	assert.Equal(t, "1.0.0", agent.GetVersion())
	assert.Equal(t, []string{"BTC/USD"}, agent.GetConfig().Symbols)
	assert.False(t, agent.IsPaused())
}

func TestBaseAgentRunRequiresStep(t *testing.T) {
	agent := newTestAgent(t)
	assert.Error(t, agent.Run(context.Background()))
}

func TestBaseAgentRunExecutesStep(t *testing.T) {
	agent := newTestAgent(t)

	var steps atomic.Int64
	agent.SetStep(func(ctx context.Context) error {
		steps.Add(1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := agent.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Greater(t, steps.Load(), int64(0))
}

func TestBaseAgentPauseResume(t *testing.T) {
	ns, url := startTestNATSServer(t)
	defer ns.Shutdown()

	agent := newTestAgent(t)
	require.NoError(t, agent.SetupControlSubscription(url, "control.events"))

	control := connectTestNATS(t, url)

	publish := func(payload string) {
		require.NoError(t, control.Publish("control.events", []byte(payload)))
		require.NoError(t, control.Flush())
	}

	waitFor := func(cond func() bool) bool {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if cond() {
				return true
			}
			time.Sleep(10 * time.Millisecond)
		}
		return false
	}

	publish(`{"event":"analysis_paused","reason":"drawdown limit"}`)
	require.True(t, waitFor(agent.IsPaused), "agent did not pause")
	assert.True(t, agent.CheckPausedAndSkip())

	publish(`{"event":"analysis_resumed"}`)
	require.True(t, waitFor(func() bool { return !agent.IsPaused() }), "agent did not resume")
	assert.False(t, agent.CheckPausedAndSkip())

	// Unknown and malformed events leave the pause state untouched
	publish(`{"event":"something_else"}`)
	publish(`not json`)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, agent.IsPaused())
}

func TestBaseAgentPausedSkipsStep(t *testing.T) {
	agent := newTestAgent(t)

	var steps atomic.Int64
	agent.SetStep(func(ctx context.Context) error {
		steps.Add(1)
		return nil
	})

	agent.pausedMutex.Lock()
	agent.paused = true
	agent.pausedMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	agent.Run(ctx) //nolint:errcheck
	assert.Equal(t, int64(0), steps.Load())
}

func TestBaseAgentCallUnknownMCPServer(t *testing.T) {
	agent := newTestAgent(t)

	_, err := agent.CallMCPTool(context.Background(), "missing", "calculate_rsi", nil)
	assert.Error(t, err)

	_, err = agent.ListMCPTools(context.Background(), "missing")
	assert.Error(t, err)
}
