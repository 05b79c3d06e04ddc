package agents

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalTopic(t *testing.T) {
	assert.Equal(t, "signals.BTC-USD", SignalTopic("BTC/USD"))
	assert.Equal(t, "signals.ETH-USD", SignalTopic("ETH-USD"))
	assert.Equal(t, "signals.SOL-USD", SignalTopic("SOL.USD"))
}

func TestSignalValidate(t *testing.T) {
	valid := Signal{Symbol: "BTC/USD", Direction: DirectionLong, Strength: 0.7, Confidence: 0.6}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Signal)
	}{
		{"missing symbol", func(s *Signal) { s.Symbol = "" }},
		{"bad direction", func(s *Signal) { s.Direction = "buy" }},
		{"strength too high", func(s *Signal) { s.Strength = 1.5 }},
		{"negative strength", func(s *Signal) { s.Strength = -0.1 }},
		{"confidence too high", func(s *Signal) { s.Confidence = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestSignalPublishSubscribe(t *testing.T) {
	ns, url := startTestNATSServer(t)
	defer ns.Shutdown()

	pubConn := connectTestNATS(t, url)
	subConn := connectTestNATS(t, url)

	received := make(chan *Signal, 10)
	sub, err := SubscribeSignals(subConn, func(s *Signal) { received <- s }, zerolog.Nop())
	require.NoError(t, err)
	defer sub.Unsubscribe() //nolint:errcheck
	require.NoError(t, subConn.Flush())

	pub := NewSignalPublisher(pubConn, "tech-1", "technical", zerolog.Nop())

	err = pub.Publish(&Signal{
		Symbol:     "BTC/USD",
		Direction:  DirectionLong,
		Strength:   0.8,
		Confidence: 0.65,
		Rationale:  "rsi oversold with macd crossover",
	})
	require.NoError(t, err)

	select {
	case s := <-received:
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, "tech-1", s.AgentID)
		assert.Equal(t, "technical", s.AgentType)
		assert.Equal(t, "BTC/USD", s.Symbol)
		assert.Equal(t, DirectionLong, s.Direction)
		assert.InDelta(t, 0.8, s.Strength, 1e-9)
		assert.False(t, s.CreatedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no signal received")
	}
}

func TestSignalPublishRejectsInvalid(t *testing.T) {
	ns, url := startTestNATSServer(t)
	defer ns.Shutdown()

	nc := connectTestNATS(t, url)
	pub := NewSignalPublisher(nc, "tech-1", "technical", zerolog.Nop())

	err := pub.Publish(&Signal{Symbol: "BTC/USD", Direction: "hold", Strength: 0.5})
	assert.Error(t, err)
}
