// Package agents provides base infrastructure for the platform's
// analytical agents.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/quantdesk/quantdesk/internal/metrics"
)

const (
	// agentShutdownTimeout bounds graceful shutdown operations
	agentShutdownTimeout = 5 * time.Second

	// mcpToolCallTimeout bounds MCP tool calls
	mcpToolCallTimeout = 30 * time.Second
)

// MCPServerConfig holds configuration for a single MCP server
type MCPServerConfig struct {
	Name    string            `json:"name" yaml:"name"`       // Server identifier (e.g., "technical_indicators")
	Type    string            `json:"type" yaml:"type"`       // "internal" (stdio) or "external" (HTTP)
	Command string            `json:"command" yaml:"command"` // Command to start internal server
	Args    []string          `json:"args" yaml:"args"`       // Arguments for internal server command
	Env     map[string]string `json:"env" yaml:"env"`         // Environment variables for internal server
	URL     string            `json:"url" yaml:"url"`         // URL for external HTTP server
}

// AgentConfig holds configuration for an agent
type AgentConfig struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"` // "technical", "risk", "portfolio", "quant"
	Version string `json:"version" yaml:"version"`

	// Symbols the agent analyzes each cycle
	Symbols []string `json:"symbols" yaml:"symbols"`

	// MCP server connections (multiple servers supported)
	MCPServers []MCPServerConfig `json:"mcp_servers" yaml:"mcp_servers"`

	StepInterval time.Duration `json:"step_interval" yaml:"step_interval"`
	Enabled      bool          `json:"enabled" yaml:"enabled"`
}

// StepFunc is the per-cycle analysis routine supplied by a concrete agent
type StepFunc func(ctx context.Context) error

// BaseAgent provides the run loop, MCP sessions, control subscription
// and metrics shared by every agent type.
type BaseAgent struct {
	name      string
	agentType string
	version   string

	mcpClient   *mcp.Client
	mcpSessions map[string]*mcp.ClientSession
	config      *AgentConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Analysis control
	paused           bool
	pausedMutex      sync.RWMutex
	natsConn         *nats.Conn
	controlSub       *nats.Subscription
	controlTopicName string

	step StepFunc

	log zerolog.Logger

	platform      *metrics.Platform
	metricsServer *metrics.Server
}

// NewBaseAgent creates a new base agent
func NewBaseAgent(config *AgentConfig, log zerolog.Logger, metricsPort int) *BaseAgent {
	agentLog := log.With().Str("agent", config.Name).Str("type", config.Type).Logger()

	mcpClient := mcp.NewClient(
		&mcp.Implementation{
			Name:    config.Name,
			Version: config.Version,
		},
		nil,
	)

	return &BaseAgent{
		name:          config.Name,
		agentType:     config.Type,
		version:       config.Version,
		mcpClient:     mcpClient,
		mcpSessions:   make(map[string]*mcp.ClientSession),
		config:        config,
		log:           agentLog,
		platform:      metrics.GetPlatform(),
		metricsServer: metrics.NewServer(metricsPort, agentLog),
	}
}

// SetStep installs the per-cycle analysis routine. Must be called
// before Run.
func (a *BaseAgent) SetStep(step StepFunc) {
	a.step = step
}

// Initialize sets up the agent and connects to its MCP servers
func (a *BaseAgent) Initialize(ctx context.Context) error {
	a.log.Info().Msg("Initializing agent")

	a.ctx, a.cancel = context.WithCancel(ctx)

	if err := a.connectMCPServers(); err != nil {
		return fmt.Errorf("failed to connect to MCP servers: %w", err)
	}

	if a.metricsServer != nil {
		if err := a.metricsServer.Start(); err != nil {
			// Metrics are not worth failing initialization over
			a.log.Error().Err(err).Msg("Failed to start metrics server")
		}
	}

	a.log.Info().Msg("Agent initialized successfully")
	return nil
}

// connectMCPServers connects to all configured MCP servers
func (a *BaseAgent) connectMCPServers() error {
	a.log.Info().Int("server_count", len(a.config.MCPServers)).Msg("Connecting to MCP servers")

	for _, serverConfig := range a.config.MCPServers {
		a.log.Info().
			Str("name", serverConfig.Name).
			Str("type", serverConfig.Type).
			Msg("Connecting to MCP server")

		var session *mcp.ClientSession
		var err error

		switch serverConfig.Type {
		case "internal":
			session, err = a.createStdioClient(a.ctx, serverConfig)
			if err != nil {
				return fmt.Errorf("failed to create stdio session for %s: %w", serverConfig.Name, err)
			}

		case "external":
			session, err = a.createHTTPClient(a.ctx, serverConfig)
			if err != nil {
				return fmt.Errorf("failed to create HTTP session for %s: %w", serverConfig.Name, err)
			}

		default:
			return fmt.Errorf("unknown server type %s for %s", serverConfig.Type, serverConfig.Name)
		}

		a.mcpSessions[serverConfig.Name] = session

		a.log.Info().Str("name", serverConfig.Name).Msg("MCP server connected")
	}

	return nil
}

// createStdioClient creates an MCP session with stdio transport for
// internal servers
func (a *BaseAgent) createStdioClient(ctx context.Context, config MCPServerConfig) (*mcp.ClientSession, error) {
	cmd := exec.CommandContext(ctx, config.Command, config.Args...) // #nosec G204 Command from validated agent config
	for key, val := range config.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, val))
	}
	transport := &mcp.CommandTransport{Command: cmd}

	session, err := a.mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return session, nil
}

// createHTTPClient creates an MCP session with HTTP streaming transport
// for external servers
func (a *BaseAgent) createHTTPClient(ctx context.Context, config MCPServerConfig) (*mcp.ClientSession, error) {
	transport := &mcp.SSEClientTransport{Endpoint: config.URL}

	session, err := a.mcpClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return session, nil
}

// Run starts the agent's main loop. Each tick executes the installed
// step unless analysis is paused.
func (a *BaseAgent) Run(ctx context.Context) error {
	if a.step == nil {
		return fmt.Errorf("no step function installed")
	}

	a.log.Info().Dur("interval", a.config.StepInterval).Msg("Starting agent run loop")

	ticker := time.NewTicker(a.config.StepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Msg("Agent run loop stopped by context")
			return ctx.Err()
		case <-a.ctx.Done():
			a.log.Info().Msg("Agent run loop stopped by internal context")
			return a.ctx.Err()
		case <-ticker.C:
			if a.CheckPausedAndSkip() {
				continue
			}
			if err := a.Step(ctx); err != nil {
				a.log.Error().Err(err).Msg("Error in agent step")
				// Keep running despite step errors
			}
		}
	}
}

// Step performs a single analysis cycle
func (a *BaseAgent) Step(ctx context.Context) error {
	start := time.Now()
	defer func() {
		a.platform.StepDuration.WithLabelValues(a.agentType).Observe(time.Since(start).Seconds())
	}()

	a.log.Debug().Msg("Executing agent step")

	if err := a.step(ctx); err != nil {
		a.platform.StepErrors.WithLabelValues(a.agentType).Inc()
		return err
	}
	return nil
}

// Shutdown gracefully stops the agent
func (a *BaseAgent) Shutdown(ctx context.Context) error {
	a.log.Info().Msg("Shutting down agent")

	if a.cancel != nil {
		a.cancel()
	}

	if a.controlSub != nil {
		if err := a.controlSub.Unsubscribe(); err != nil {
			a.log.Error().Err(err).Msg("Error unsubscribing from control topic")
		} else {
			a.log.Debug().Str("topic", a.controlTopicName).Msg("Unsubscribed from control topic")
		}
	}

	if a.natsConn != nil {
		a.natsConn.Close()
		a.log.Debug().Msg("NATS connection closed")
	}

	for name, session := range a.mcpSessions {
		if err := session.Close(); err != nil {
			a.log.Error().Err(err).Str("server", name).Msg("Error closing MCP session")
		} else {
			a.log.Debug().Str("server", name).Msg("MCP session closed")
		}
	}

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), agentShutdownTimeout)
		defer cancel()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error().Err(err).Msg("Error shutting down metrics server")
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.log.Info().Msg("Agent shutdown complete")
	case <-ctx.Done():
		a.log.Warn().Msg("Agent shutdown timeout")
		return ctx.Err()
	}

	return nil
}

// CallMCPTool calls a tool on a specific MCP server
func (a *BaseAgent) CallMCPTool(ctx context.Context, serverName string, toolName string, arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	session, ok := a.mcpSessions[serverName]
	if !ok {
		return nil, fmt.Errorf("MCP server %s not found", serverName)
	}

	toolCtx, cancel := context.WithTimeout(ctx, mcpToolCallTimeout)
	defer cancel()

	result, err := session.CallTool(toolCtx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: arguments,
	})
	if err != nil {
		return nil, fmt.Errorf("tool call failed: %w", err)
	}

	return result, nil
}

// ListMCPTools lists available tools from a specific MCP server
func (a *BaseAgent) ListMCPTools(ctx context.Context, serverName string) (*mcp.ListToolsResult, error) {
	session, ok := a.mcpSessions[serverName]
	if !ok {
		return nil, fmt.Errorf("MCP server %s not found", serverName)
	}

	result, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return result, nil
}

// HasMCPSession reports whether a session to the named MCP server is
// attached
func (a *BaseAgent) HasMCPSession(serverName string) bool {
	_, ok := a.mcpSessions[serverName]
	return ok
}

// GetConfig returns the agent's configuration
func (a *BaseAgent) GetConfig() *AgentConfig {
	return a.config
}

// GetName returns the agent's name
func (a *BaseAgent) GetName() string {
	return a.name
}

// GetType returns the agent's type
func (a *BaseAgent) GetType() string {
	return a.agentType
}

// GetVersion returns the agent's version
func (a *BaseAgent) GetVersion() string {
	return a.version
}

// NATSConn returns the agent's NATS connection, nil before
// SetupControlSubscription.
func (a *BaseAgent) NATSConn() *nats.Conn {
	return a.natsConn
}

// SetupControlSubscription connects to NATS and subscribes to control
// events so the agent can be paused and resumed remotely.
func (a *BaseAgent) SetupControlSubscription(natsURL, controlTopic string) error {
	if a.natsConn == nil {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		a.natsConn = nc
		a.log.Info().Str("url", natsURL).Msg("Connected to NATS for control events")
	}

	a.controlTopicName = controlTopic

	sub, err := a.natsConn.Subscribe(controlTopic, a.handleControlEvent)
	if err != nil {
		return fmt.Errorf("failed to subscribe to control topic: %w", err)
	}
	a.controlSub = sub

	a.log.Info().Str("topic", controlTopic).Msg("Subscribed to control events")
	return nil
}

// handleControlEvent processes pause and resume events
func (a *BaseAgent) handleControlEvent(msg *nats.Msg) {
	var event map[string]interface{}
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		a.log.Error().Err(err).Msg("Failed to unmarshal control event")
		return
	}

	eventType, ok := event["event"].(string)
	if !ok {
		a.log.Warn().Msg("Control event missing 'event' field")
		return
	}

	switch eventType {
	case "analysis_paused":
		a.pausedMutex.Lock()
		a.paused = true
		a.pausedMutex.Unlock()

		reason := "unknown"
		if r, ok := event["reason"].(string); ok {
			reason = r
		}

		a.log.Info().
			Str("reason", reason).
			Msg("Analysis paused - halting signal generation")

	case "analysis_resumed":
		a.pausedMutex.Lock()
		a.paused = false
		a.pausedMutex.Unlock()

		a.log.Info().Msg("Analysis resumed - resuming signal generation")

	default:
		a.log.Debug().Str("event", eventType).Msg("Unknown control event received")
	}
}

// IsPaused returns whether analysis is currently paused
func (a *BaseAgent) IsPaused() bool {
	a.pausedMutex.RLock()
	defer a.pausedMutex.RUnlock()
	return a.paused
}

// CheckPausedAndSkip returns true if the current step should be skipped
func (a *BaseAgent) CheckPausedAndSkip() bool {
	if a.IsPaused() {
		a.log.Debug().Msg("Analysis is paused, skipping agent step")
		return true
	}
	return false
}
