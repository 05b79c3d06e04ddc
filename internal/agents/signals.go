package agents

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quantdesk/quantdesk/internal/metrics"
)

// Signal directions
const (
	DirectionLong  = "long"
	DirectionShort = "short"
	DirectionFlat  = "flat"
)

// SignalTopicPrefix is the NATS subject prefix for trading signals.
// Per-symbol subjects look like "signals.BTC-USD"; consumers subscribe
// to "signals.>" for everything.
const SignalTopicPrefix = "signals"

// Signal is a trading signal emitted by an agent
type Signal struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agent_id"`
	AgentType  string    `json:"agent_type"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"` // "long", "short", "flat"
	Strength   float64   `json:"strength"`  // [0, 1]
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks signal fields before publication
func (s *Signal) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("signal symbol is required")
	}
	switch s.Direction {
	case DirectionLong, DirectionShort, DirectionFlat:
	default:
		return fmt.Errorf("invalid signal direction: %s", s.Direction)
	}
	if s.Strength < 0 || s.Strength > 1 {
		return fmt.Errorf("signal strength %f out of range [0, 1]", s.Strength)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal confidence %f out of range [0, 1]", s.Confidence)
	}
	return nil
}

// SignalTopic returns the NATS subject for a symbol's signals. Symbol
// separators are normalized because '/' is not valid in NATS subjects.
func SignalTopic(symbol string) string {
	normalized := make([]byte, 0, len(symbol))
	for i := 0; i < len(symbol); i++ {
		c := symbol[i]
		if c == '/' || c == '.' || c == ' ' {
			c = '-'
		}
		normalized = append(normalized, c)
	}
	return fmt.Sprintf("%s.%s", SignalTopicPrefix, normalized)
}

// SignalPublisher publishes validated signals to NATS
type SignalPublisher struct {
	nc        *nats.Conn
	agentID   string
	agentType string
	platform  *metrics.Platform
	log       zerolog.Logger
}

// NewSignalPublisher creates a signal publisher for an agent
func NewSignalPublisher(nc *nats.Conn, agentID, agentType string, log zerolog.Logger) *SignalPublisher {
	return &SignalPublisher{
		nc:        nc,
		agentID:   agentID,
		agentType: agentType,
		platform:  metrics.GetPlatform(),
		log:       log.With().Str("component", "signal_publisher").Logger(),
	}
}

// Publish stamps, validates and publishes a signal. The ID, agent
// fields and timestamp are filled in if missing.
func (p *SignalPublisher) Publish(signal *Signal) error {
	if signal.ID == "" {
		signal.ID = uuid.New().String()
	}
	if signal.AgentID == "" {
		signal.AgentID = p.agentID
	}
	if signal.AgentType == "" {
		signal.AgentType = p.agentType
	}
	if signal.CreatedAt.IsZero() {
		signal.CreatedAt = time.Now().UTC()
	}

	if err := signal.Validate(); err != nil {
		return fmt.Errorf("invalid signal: %w", err)
	}

	data, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	topic := SignalTopic(signal.Symbol)
	if err := p.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}

	p.platform.SignalsEmitted.WithLabelValues(signal.AgentType, signal.Direction).Inc()

	p.log.Info().
		Str("topic", topic).
		Str("symbol", signal.Symbol).
		Str("direction", signal.Direction).
		Float64("strength", signal.Strength).
		Msg("Signal published")

	return nil
}

// SignalHandler processes a received signal
type SignalHandler func(signal *Signal)

// SubscribeSignals subscribes to signals for all symbols. Malformed
// payloads are logged and dropped.
func SubscribeSignals(nc *nats.Conn, handler SignalHandler, log zerolog.Logger) (*nats.Subscription, error) {
	subject := SignalTopicPrefix + ".>"
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var signal Signal
		if err := json.Unmarshal(msg.Data, &signal); err != nil {
			log.Error().Err(err).Str("subject", msg.Subject).Msg("Failed to unmarshal signal")
			return
		}
		handler(&signal)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to signals: %w", err)
	}
	return sub, nil
}
