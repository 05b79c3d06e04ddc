package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk/internal/indicators"
)

func newTestMCPServer() *MCPServer {
	return &MCPServer{service: indicators.NewService()}
}

func toolCallRequest(t *testing.T, id int, name string, args map[string]interface{}) MCPRequest {
	t.Helper()
	params, err := json.Marshal(toolCallParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return MCPRequest{JSONRPC: "2.0", ID: id, Method: "tools/call", Params: params}
}

func floatArgs(values []float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// decodeToolText unwraps the text content block of a tool call response
func decodeToolText(t *testing.T, resp *MCPResponse, out interface{}) {
	t.Helper()
	result, ok := resp.Result.(*toolResult)
	require.True(t, ok, "expected *toolResult, got %T", resp.Result)
	require.Len(t, result.Content, 1)
	require.Equal(t, "text", result.Content[0].Type)
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), out))
}

func TestInitialize(t *testing.T) {
	server := newTestMCPServer()

	req := MCPRequest{JSONRPC: "2.0", ID: 1, Method: "initialize", Params: json.RawMessage(`{}`)}
	resp := server.handleRequest(&req)

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, 1, resp.ID)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, protocolVersion, result["protocolVersion"])

	serverInfo, ok := result["serverInfo"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, serverName, serverInfo["name"])
	assert.Equal(t, serverVersion, serverInfo["version"])
}

func TestListTools(t *testing.T) {
	server := newTestMCPServer()

	resp := server.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 2, Method: "tools/list"})
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)

	tools, ok := result["tools"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, tools, 7)

	toolNames := make([]string, len(tools))
	for i, tool := range tools {
		toolNames[i] = tool["name"].(string)
	}
	for _, name := range []string{
		"calculate_sma", "calculate_ema", "calculate_rsi", "calculate_macd",
		"calculate_bollinger_bands", "calculate_atr", "calculate_adx",
	} {
		assert.Contains(t, toolNames, name)
	}
}

func TestCallRSI(t *testing.T) {
	server := newTestMCPServer()

	prices := []float64{
		44.34, 44.09, 43.61, 43.03, 43.52, 43.13, 42.66,
		42.82, 42.67, 43.13, 43.37, 43.23, 43.08, 42.07,
		41.99, 42.18, 42.49, 42.28, 42.51, 43.13,
	}

	req := toolCallRequest(t, 3, "calculate_rsi", map[string]interface{}{
		"prices": floatArgs(prices),
		"period": 14,
	})
	resp := server.handleRequest(&req)

	require.Nil(t, resp.Error)

	var result indicators.RSIResult
	decodeToolText(t, resp, &result)
	assert.Greater(t, result.Value, 0.0)
	assert.NotEmpty(t, result.Signal)
}

func TestCallRSIInsufficientData(t *testing.T) {
	server := newTestMCPServer()

	req := toolCallRequest(t, 4, "calculate_rsi", map[string]interface{}{
		"prices": floatArgs([]float64{100, 101, 99}),
		"period": 14,
	})
	resp := server.handleRequest(&req)

	require.NotNil(t, resp.Error)
	assert.Equal(t, -32000, resp.Error.Code)
}

func TestCallMACDDefaults(t *testing.T) {
	server := newTestMCPServer()

	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 100 + float64(i)*0.5
	}

	req := toolCallRequest(t, 5, "calculate_macd", map[string]interface{}{
		"prices": floatArgs(prices),
	})
	resp := server.handleRequest(&req)
	require.Nil(t, resp.Error)
}

func TestCallATR(t *testing.T) {
	server := newTestMCPServer()

	n := 40
	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		base := 100.0 + float64(i)*0.2
		high[i] = base + 1
		low[i] = base - 1
		closes[i] = base
	}

	req := toolCallRequest(t, 6, "calculate_atr", map[string]interface{}{
		"high":  floatArgs(high),
		"low":   floatArgs(low),
		"close": floatArgs(closes),
	})
	resp := server.handleRequest(&req)
	require.Nil(t, resp.Error)

	var result indicators.ATRResult
	decodeToolText(t, resp, &result)
	assert.Greater(t, result.Value, 0.0)
}

func TestCallADXMismatchedLengths(t *testing.T) {
	server := newTestMCPServer()

	req := toolCallRequest(t, 7, "calculate_adx", map[string]interface{}{
		"high":  floatArgs([]float64{102, 103, 104}),
		"low":   floatArgs([]float64{98, 99}),
		"close": floatArgs([]float64{100, 101, 102}),
	})
	resp := server.handleRequest(&req)
	assert.NotNil(t, resp.Error)
}

func TestUnknownMethod(t *testing.T) {
	server := newTestMCPServer()

	resp := server.handleRequest(&MCPRequest{JSONRPC: "2.0", ID: 8, Method: "resources/list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "Method not found")
}

func TestUnknownTool(t *testing.T) {
	server := newTestMCPServer()

	req := toolCallRequest(t, 9, "calculate_ichimoku", map[string]interface{}{})
	resp := server.handleRequest(&req)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "unknown tool")
}

func TestMalformedParams(t *testing.T) {
	server := newTestMCPServer()

	req := MCPRequest{
		JSONRPC: "2.0",
		ID:      10,
		Method:  "tools/call",
		Params:  json.RawMessage(`{invalid json`),
	}
	resp := server.handleRequest(&req)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32602, resp.Error.Code)
}

func TestRunOverStdio(t *testing.T) {
	server := newTestMCPServer()

	var in bytes.Buffer
	encoder := json.NewEncoder(&in)
	require.NoError(t, encoder.Encode(MCPRequest{
		JSONRPC: "2.0", ID: 11, Method: "initialize", Params: json.RawMessage(`{}`),
	}))
	require.NoError(t, encoder.Encode(toolCallRequest(t, 12, "calculate_sma", map[string]interface{}{
		"prices": floatArgs([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}),
		"period": 5,
	})))

	var out bytes.Buffer
	require.NoError(t, server.Run(&in, &out))

	decoder := json.NewDecoder(&out)

	var first MCPResponse
	require.NoError(t, decoder.Decode(&first))
	assert.Equal(t, 11, first.ID)
	assert.Nil(t, first.Error)

	var second MCPResponse
	require.NoError(t, decoder.Decode(&second))
	assert.Equal(t, 12, second.ID)
	assert.Nil(t, second.Error)
}
