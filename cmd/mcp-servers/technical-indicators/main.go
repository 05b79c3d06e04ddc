package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/indicators"
)

const (
	serverName      = "technical-indicators"
	serverVersion   = "1.0.0"
	protocolVersion = "2024-11-05"
)

func main() {
	// Logging goes to stderr, stdout is reserved for the MCP protocol
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().Msg("Technical Indicators MCP Server starting...")

	server := &MCPServer{
		service: indicators.NewService(),
	}

	if err := server.Run(os.Stdin, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

// MCPServer handles MCP protocol over stdio
type MCPServer struct {
	service *indicators.Service
}

// Run reads requests from in and writes responses to out until EOF
func (s *MCPServer) Run(in io.Reader, out io.Writer) error {
	log.Info().Msg("MCP server ready, listening on stdio")

	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		var request MCPRequest
		if err := decoder.Decode(&request); err != nil {
			if err == io.EOF {
				log.Info().Msg("Client disconnected")
				return nil
			}
			log.Error().Err(err).Msg("Failed to decode request")
			continue
		}

		log.Debug().
			Str("method", request.Method).
			Msg("Received request")

		response := s.handleRequest(&request)

		if err := encoder.Encode(response); err != nil {
			log.Error().Err(err).Msg("Failed to encode response")
			return err
		}
	}
}

// MCPRequest represents a JSON-RPC request from the MCP client
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an MCP response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents an MCP error
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// toolContent is one content block of a tool call result
type toolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult is the tool call result shape MCP clients decode
type toolResult struct {
	Content []toolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// wrapToolResult serializes an indicator result into a text content block
func wrapToolResult(result interface{}) (*toolResult, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return &toolResult{
		Content: []toolContent{{Type: "text", Text: string(payload)}},
	}, nil
}

// handleRequest routes the request to the appropriate handler
func (s *MCPServer) handleRequest(req *MCPRequest) *MCPResponse {
	response := &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	switch req.Method {
	case "initialize":
		response.Result = map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": serverVersion,
			},
		}
		return response

	case "tools/list":
		response.Result = s.listTools()
		return response

	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			response.Error = &MCPError{
				Code:    -32602,
				Message: fmt.Sprintf("invalid params: %v", err),
			}
			return response
		}

		result, err := s.callTool(params.Name, params.Arguments)
		if err != nil {
			response.Error = &MCPError{
				Code:    -32000,
				Message: err.Error(),
			}
			return response
		}

		wrapped, err := wrapToolResult(result)
		if err != nil {
			response.Error = &MCPError{
				Code:    -32603,
				Message: err.Error(),
			}
		} else {
			response.Result = wrapped
		}
		return response

	default:
		response.Error = &MCPError{
			Code:    -32601,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
		return response
	}
}

func priceArraySchema(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]string{"type": "number"},
		"description": description,
	}
}

func periodSchema(description string, defaultValue int) map[string]interface{} {
	return map[string]interface{}{
		"type":        "number",
		"description": description,
		"default":     defaultValue,
	}
}

// listTools returns the list of available tools
func (s *MCPServer) listTools() interface{} {
	return map[string]interface{}{
		"tools": []map[string]interface{}{
			{
				"name":        "calculate_sma",
				"description": "Calculate Simple Moving Average (SMA)",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prices": priceArraySchema("Array of closing prices"),
						"period": map[string]interface{}{
							"type":        "number",
							"description": "SMA period",
						},
					},
					"required": []string{"prices", "period"},
				},
			},
			{
				"name":        "calculate_ema",
				"description": "Calculate Exponential Moving Average (EMA)",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prices": priceArraySchema("Array of closing prices"),
						"period": map[string]interface{}{
							"type":        "number",
							"description": "EMA period",
						},
					},
					"required": []string{"prices", "period"},
				},
			},
			{
				"name":        "calculate_rsi",
				"description": "Calculate Relative Strength Index (RSI) for trend strength analysis",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prices": priceArraySchema("Array of closing prices"),
						"period": periodSchema("RSI period (default: 14)", 14),
					},
					"required": []string{"prices"},
				},
			},
			{
				"name":        "calculate_macd",
				"description": "Calculate Moving Average Convergence Divergence (MACD) for trend analysis",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prices":        priceArraySchema("Array of closing prices"),
						"fast_period":   periodSchema("Fast EMA period (default: 12)", 12),
						"slow_period":   periodSchema("Slow EMA period (default: 26)", 26),
						"signal_period": periodSchema("Signal line period (default: 9)", 9),
					},
					"required": []string{"prices"},
				},
			},
			{
				"name":        "calculate_bollinger_bands",
				"description": "Calculate Bollinger Bands for volatility analysis",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"prices": priceArraySchema("Array of closing prices"),
						"period": periodSchema("Period for moving average (default: 20)", 20),
						"std_dev": map[string]interface{}{
							"type":        "number",
							"description": "Standard deviations (default: 2)",
							"default":     2,
						},
					},
					"required": []string{"prices"},
				},
			},
			{
				"name":        "calculate_atr",
				"description": "Calculate Average True Range (ATR) for volatility measurement",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"high":   priceArraySchema("Array of high prices"),
						"low":    priceArraySchema("Array of low prices"),
						"close":  priceArraySchema("Array of closing prices"),
						"period": periodSchema("ATR period (default: 14)", 14),
					},
					"required": []string{"high", "low", "close"},
				},
			},
			{
				"name":        "calculate_adx",
				"description": "Calculate Average Directional Index (ADX) for trend strength",
				"inputSchema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"high":   priceArraySchema("Array of high prices"),
						"low":    priceArraySchema("Array of low prices"),
						"close":  priceArraySchema("Array of closing prices"),
						"period": periodSchema("ADX period (default: 14)", 14),
					},
					"required": []string{"high", "low", "close"},
				},
			},
		},
	}
}

// callTool executes the requested tool
func (s *MCPServer) callTool(name string, args map[string]interface{}) (interface{}, error) {
	log.Debug().
		Str("tool", name).
		Msg("Calling tool")

	switch name {
	case "calculate_sma":
		return s.service.CalculateSMA(args)
	case "calculate_ema":
		return s.service.CalculateEMA(args)
	case "calculate_rsi":
		return s.service.CalculateRSI(args)
	case "calculate_macd":
		return s.service.CalculateMACD(args)
	case "calculate_bollinger_bands":
		return s.service.CalculateBollingerBands(args)
	case "calculate_atr":
		return s.service.CalculateATR(args)
	case "calculate_adx":
		return s.service.CalculateADX(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}
