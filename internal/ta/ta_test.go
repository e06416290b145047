package ta

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	if got := SMA(closes, 5); got != 3 {
		t.Errorf("Expected SMA 3, got %f", got)
	}
	if got := SMA(closes, 2); got != 4.5 {
		t.Errorf("Expected SMA 4.5, got %f", got)
	}
	if got := SMA(closes, 6); !math.IsNaN(got) {
		t.Errorf("Expected NaN for short input, got %f", got)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	closes := []float64{100, 101, 102}
	if got := RSI(closes, 14); !math.IsNaN(got) {
		t.Errorf("Expected NaN with fewer than period+1 closes, got %f", got)
	}
	// Exactly period+1 closes is the minimum
	series := make([]float64, 15)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	if got := RSI(series, 14); math.IsNaN(got) {
		t.Error("Expected a value with period+1 closes, got NaN")
	}
}

func TestRSIBounds(t *testing.T) {
	up := make([]float64, 30)
	down := make([]float64, 30)
	mixed := make([]float64, 30)
	for i := range up {
		up[i] = 100 + float64(i)
		down[i] = 100 - float64(i)
		if i%2 == 0 {
			mixed[i] = 100 + float64(i%5)
		} else {
			mixed[i] = 100 - float64(i%3)
		}
	}
	if got := RSI(up, 14); got != 100 {
		t.Errorf("Expected RSI 100 for strictly rising closes, got %f", got)
	}
	if got := RSI(down, 14); !almostEqual(got, 0, 1e-9) {
		t.Errorf("Expected RSI 0 for strictly falling closes, got %f", got)
	}
	got := RSI(mixed, 14)
	if got < 0 || got > 100 {
		t.Errorf("RSI out of [0,100]: %f", got)
	}
}

func TestRSIWilderSmoothing(t *testing.T) {
	// A late gain must be smoothed, not dropped: with Wilder smoothing the
	// last delta only carries weight 1/period.
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28,
	}
	got := RSI(closes, 14)
	if !almostEqual(got, 70.46, 0.1) {
		t.Errorf("Expected RSI near 70.46 for the reference series, got %f", got)
	}
}

func TestRSIDeterministic(t *testing.T) {
	closes := []float64{10, 11, 10.5, 12, 11.8, 12.5, 12.1, 13, 12.7, 13.3, 13.1, 14, 13.8, 14.2, 14.5, 14.1}
	a := RSI(closes, 14)
	b := RSI(closes, 14)
	if a != b {
		t.Errorf("RSI not deterministic: %f vs %f", a, b)
	}
}

func TestEMASeedIsSMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	s := EMASeries(vals, 5)
	if len(s) != 1 {
		t.Fatalf("Expected a single seed value, got %d", len(s))
	}
	if s[0] != 3 {
		t.Errorf("Expected seed 3 (SMA of first 5), got %f", s[0])
	}
}

func TestEMASeries(t *testing.T) {
	// period 2: seed (1+2)/2 = 1.5, then 3*(2/3) + 1.5*(1/3) = 2.5
	s := EMASeries([]float64{1, 2, 3}, 2)
	if len(s) != 2 {
		t.Fatalf("Expected 2 values, got %d", len(s))
	}
	if !almostEqual(s[0], 1.5, 1e-12) || !almostEqual(s[1], 2.5, 1e-12) {
		t.Errorf("Expected [1.5 2.5], got %v", s)
	}
	if got := EMA([]float64{1, 2, 3}, 2); !almostEqual(got, 2.5, 1e-12) {
		t.Errorf("Expected EMA 2.5, got %f", got)
	}
	if got := EMA([]float64{1}, 2); !math.IsNaN(got) {
		t.Errorf("Expected NaN for short input, got %f", got)
	}
}

func TestMACDFlatSeries(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 50
	}
	line, sig, hist := MACD(closes, 12, 26, 9)
	if line != 0 || sig != 0 || hist != 0 {
		t.Errorf("Expected zero MACD on a flat series, got line=%f sig=%f hist=%f", line, sig, hist)
	}
}

func TestMACDInsufficientData(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = float64(i)
	}
	line, sig, hist := MACD(closes, 12, 26, 9)
	if !math.IsNaN(line) || !math.IsNaN(sig) || !math.IsNaN(hist) {
		t.Errorf("Expected NaN below slow+signal-1 closes, got line=%f sig=%f hist=%f", line, sig, hist)
	}
}

func TestMACDRisingSeries(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	line, sig, hist := MACD(closes, 12, 26, 9)
	if line <= 0 {
		t.Errorf("Expected positive MACD line on a rising series, got %f", line)
	}
	if !almostEqual(hist, line-sig, 1e-12) {
		t.Errorf("Histogram mismatch: %f != %f - %f", hist, line, sig)
	}
}

func TestStdDev(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	if got := StdDev(vals, 8); !almostEqual(got, 2, 1e-12) {
		t.Errorf("Expected stddev 2, got %f", got)
	}
}

func TestBollinger(t *testing.T) {
	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 10
	}
	mid, up, low := Bollinger(flat, 20, 2)
	if mid != 10 || up != 10 || low != 10 {
		t.Errorf("Expected collapsed bands on a flat series, got mid=%f up=%f low=%f", mid, up, low)
	}

	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mid, up, low = Bollinger(vals, 8, 2)
	if !almostEqual(mid, 5, 1e-12) || !almostEqual(up, 9, 1e-12) || !almostEqual(low, 1, 1e-12) {
		t.Errorf("Expected mid=5 up=9 low=1, got mid=%f up=%f low=%f", mid, up, low)
	}
}
