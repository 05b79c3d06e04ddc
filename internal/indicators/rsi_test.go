package indicators

import (
	"testing"
)

// ramp generates n prices stepping from start by step each bar
func ramp(n int, start, step float64) []float64 {
	prices := make([]float64, n)
	for i := 0; i < n; i++ {
		prices[i] = start + float64(i)*step
	}
	return prices
}

func TestCalculateRSI(t *testing.T) {
	service := NewService()

	prices := ramp(20, 44, 0.5)

	tests := []struct {
		name      string
		args      map[string]interface{}
		wantError bool
	}{
		{
			name: "Valid RSI with default period",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
			},
		},
		{
			name: "Valid RSI with custom period",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
				"period": 10,
			},
		},
		{
			name:      "Missing prices",
			args:      map[string]interface{}{"period": 14},
			wantError: true,
		},
		{
			name: "Period exceeds data length",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
				"period": len(prices) + 1,
			},
			wantError: true,
		},
		{
			name: "Zero period",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
				"period": 0,
			},
			wantError: true,
		},
		{
			name:      "Empty prices array",
			args:      map[string]interface{}{"prices": []interface{}{}},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.CalculateRSI(tt.args)

			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			rsi, ok := result.(*RSIResult)
			if !ok {
				t.Fatal("Expected *RSIResult type")
			}

			if rsi.Value < 0 || rsi.Value > 100 {
				t.Errorf("RSI %.2f out of range [0, 100]", rsi.Value)
			}

			// The signal must agree with the value it describes
			switch {
			case rsi.Value < 30 && rsi.Signal != "oversold":
				t.Errorf("Expected oversold for RSI %.2f, got %s", rsi.Value, rsi.Signal)
			case rsi.Value > 70 && rsi.Signal != "overbought":
				t.Errorf("Expected overbought for RSI %.2f, got %s", rsi.Value, rsi.Signal)
			case rsi.Value >= 30 && rsi.Value <= 70 && rsi.Signal != "neutral":
				t.Errorf("Expected neutral for RSI %.2f, got %s", rsi.Value, rsi.Signal)
			}
		})
	}
}

func TestRSISignals(t *testing.T) {
	service := NewService()

	tests := []struct {
		name           string
		prices         []float64
		expectedSignal string
	}{
		{
			name:           "Relentless rally reads overbought",
			prices:         ramp(16, 10, 2),
			expectedSignal: "overbought",
		},
		{
			name:           "Relentless selloff reads oversold",
			prices:         ramp(16, 40, -2),
			expectedSignal: "oversold",
		},
		{
			name: "Choppy sideways market reads neutral",
			prices: []float64{
				20.0, 21.0, 20.5, 20.0, 21.0, 20.5, 20.0, 21.0,
				20.5, 20.0, 21.0, 20.5, 20.0, 21.0, 20.5, 20.0,
			},
			expectedSignal: "neutral",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.CalculateRSI(map[string]interface{}{
				"prices": toInterfaceSlice(tt.prices),
				"period": 14,
			})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			rsi := result.(*RSIResult)
			if rsi.Signal != tt.expectedSignal {
				t.Errorf("Expected signal %s, got %s (RSI %.2f)",
					tt.expectedSignal, rsi.Signal, rsi.Value)
			}
		})
	}
}
