package indicators

import (
	"math"
	"testing"
)

func TestCalculateSMA(t *testing.T) {
	service := NewService()

	prices := []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19}

	tests := []struct {
		name      string
		args      map[string]interface{}
		wantError bool
		wantValue float64
	}{
		{
			name: "Valid SMA over full window",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
				"period": 5,
			},
			// Last 5 closes: 15,16,17,18,19
			wantValue: 17.0,
		},
		{
			name: "Missing period",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
			},
			wantError: true,
		},
		{
			name: "Period larger than data",
			args: map[string]interface{}{
				"prices": toInterfaceSlice(prices),
				"period": len(prices) + 1,
			},
			wantError: true,
		},
		{
			name: "Missing prices",
			args: map[string]interface{}{
				"period": 5,
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.CalculateSMA(tt.args)

			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			smaResult, ok := result.(*SMAResult)
			if !ok {
				t.Fatal("Expected *SMAResult type")
			}

			if math.Abs(smaResult.Value-tt.wantValue) > 1e-9 {
				t.Errorf("Expected SMA %.4f, got %.4f", tt.wantValue, smaResult.Value)
			}
		})
	}
}

func TestSMATrendSignals(t *testing.T) {
	service := NewService()

	tests := []struct {
		name          string
		prices        []float64
		expectedTrend string
	}{
		{
			name:          "Rising prices close above SMA",
			prices:        []float64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19},
			expectedTrend: "bullish",
		},
		{
			name:          "Falling prices close below SMA",
			prices:        []float64{19, 18, 17, 16, 15, 14, 13, 12, 11, 10},
			expectedTrend: "bearish",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := service.CalculateSMA(map[string]interface{}{
				"prices": toInterfaceSlice(tt.prices),
				"period": 5,
			})
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			smaResult := result.(*SMAResult)
			if smaResult.Trend != tt.expectedTrend {
				t.Errorf("Expected trend %s, got %s (SMA: %.2f)",
					tt.expectedTrend, smaResult.Trend, smaResult.Value)
			}
		})
	}
}
