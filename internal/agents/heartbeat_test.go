package agents

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeartbeatPublish(t *testing.T) {
	ns, url := startTestNATSServer(t)
	defer ns.Shutdown()

	nc := connectTestNATS(t, url)
	sub := connectTestNATS(t, url)

	cfg := HeartbeatConfig{Interval: 50 * time.Millisecond, Topic: "agents.heartbeat"}

	received := make(chan Heartbeat, 10)
	_, err := sub.Subscribe(cfg.Topic, func(msg *nats.Msg) {
		var hb Heartbeat
		if err := json.Unmarshal(msg.Data, &hb); err == nil {
			received <- hb
		}
	})
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub := NewHeartbeatPublisher(nc, "tech-1", "technical", "1.0.0", cfg, nil, zerolog.Nop())
	require.NoError(t, pub.Start())
	defer pub.Stop()

	select {
	case hb := <-received:
		assert.Equal(t, "tech-1", hb.AgentName)
		assert.Equal(t, "technical", hb.AgentType)
		assert.Equal(t, "1.0.0", hb.Version)
		assert.Equal(t, "running", hb.Status)
		assert.False(t, hb.Timestamp.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestHeartbeatStatusCallback(t *testing.T) {
	ns, url := startTestNATSServer(t)
	defer ns.Shutdown()

	nc := connectTestNATS(t, url)
	sub := connectTestNATS(t, url)

	cfg := HeartbeatConfig{Interval: time.Hour, Topic: "agents.heartbeat.status"}

	received := make(chan Heartbeat, 10)
	_, err := sub.Subscribe(cfg.Topic, func(msg *nats.Msg) {
		var hb Heartbeat
		if err := json.Unmarshal(msg.Data, &hb); err == nil {
			received <- hb
		}
	})
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	pub := NewHeartbeatPublisher(nc, "risk-1", "risk", "1.0.0", cfg,
		func() string { return "paused" }, zerolog.Nop())
	require.NoError(t, pub.Start())
	defer pub.Stop()

	select {
	case hb := <-received:
		assert.Equal(t, "paused", hb.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat received")
	}
}

func TestHeartbeatStartStop(t *testing.T) {
	ns, url := startTestNATSServer(t)
	defer ns.Shutdown()

	nc := connectTestNATS(t, url)

	pub := NewHeartbeatPublisher(nc, "a", "technical", "1.0.0", DefaultHeartbeatConfig(), nil, zerolog.Nop())
	require.NoError(t, pub.Start())
	assert.Error(t, pub.Start())

	pub.Stop()
	pub.Stop() // second stop is a no-op

	require.NoError(t, pub.Start())
	pub.Stop()
}

func TestHeartbeatNilConnection(t *testing.T) {
	pub := NewHeartbeatPublisher(nil, "a", "technical", "1.0.0", DefaultHeartbeatConfig(), nil, zerolog.Nop())
	assert.Error(t, pub.Start())
}
