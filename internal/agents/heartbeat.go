package agents

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// HeartbeatConfig configures periodic heartbeat publishing
type HeartbeatConfig struct {
	Interval time.Duration
	Topic    string
}

// DefaultHeartbeatConfig returns the standard heartbeat configuration
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
		Topic:    "agents.heartbeat",
	}
}

// Heartbeat is the payload published on the heartbeat topic
type Heartbeat struct {
	AgentName string    `json:"agent_name"`
	AgentType string    `json:"agent_type"`
	Version   string    `json:"version"`
	Status    string    `json:"status"` // "running", "paused", "degraded"
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatPublisher periodically publishes agent liveness to NATS
type HeartbeatPublisher struct {
	nc        *nats.Conn
	agentName string
	agentType string
	version   string
	config    HeartbeatConfig
	status    func() string

	running  atomic.Bool
	stopChan chan struct{}
	doneChan chan struct{}

	log zerolog.Logger
}

// NewHeartbeatPublisher creates a heartbeat publisher for an agent.
// status is polled on every beat and may be nil, in which case the
// status is always "running".
func NewHeartbeatPublisher(nc *nats.Conn, agentName, agentType, version string, config HeartbeatConfig, status func() string, log zerolog.Logger) *HeartbeatPublisher {
	return &HeartbeatPublisher{
		nc:        nc,
		agentName: agentName,
		agentType: agentType,
		version:   version,
		config:    config,
		status:    status,
		log:       log.With().Str("component", "heartbeat").Logger(),
	}
}

// Start begins publishing heartbeats at the configured interval
func (h *HeartbeatPublisher) Start() error {
	if h.nc == nil {
		return fmt.Errorf("nats connection is nil")
	}
	if !h.running.CompareAndSwap(false, true) {
		return fmt.Errorf("heartbeat publisher already running")
	}

	h.stopChan = make(chan struct{})
	h.doneChan = make(chan struct{})

	go h.loop()

	h.log.Info().
		Dur("interval", h.config.Interval).
		Str("topic", h.config.Topic).
		Msg("Heartbeat publisher started")
	return nil
}

func (h *HeartbeatPublisher) loop() {
	defer close(h.doneChan)

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	// Publish immediately so consumers see the agent without waiting
	// for the first interval.
	h.publish()

	for {
		select {
		case <-h.stopChan:
			return
		case <-ticker.C:
			h.publish()
		}
	}
}

func (h *HeartbeatPublisher) publish() {
	status := "running"
	if h.status != nil {
		status = h.status()
	}
	if err := h.PublishWithStatus(status); err != nil {
		h.log.Error().Err(err).Msg("Failed to publish heartbeat")
	}
}

// PublishWithStatus publishes a single heartbeat with the given status
func (h *HeartbeatPublisher) PublishWithStatus(status string) error {
	hb := Heartbeat{
		AgentName: h.agentName,
		AgentType: h.agentType,
		Version:   h.version,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	if err := h.nc.Publish(h.config.Topic, data); err != nil {
		return fmt.Errorf("failed to publish heartbeat: %w", err)
	}

	return nil
}

// Stop stops the heartbeat publisher and waits for the loop to exit
func (h *HeartbeatPublisher) Stop() {
	if !h.running.CompareAndSwap(true, false) {
		return
	}

	close(h.stopChan)
	<-h.doneChan

	h.log.Info().Msg("Heartbeat publisher stopped")
}
