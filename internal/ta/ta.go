package ta

import "math"

func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

// RSI uses Wilder's smoothing: the seed average covers the first period
// deltas, every later delta folds in with weight 1/period. Needs period+1
// closes.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			avgGain += d
		} else {
			avgLoss -= d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// EMASeries returns the exponential moving average for every index from
// period-1 onward, seeded with the simple average of the first period values.
func EMASeries(vals []float64, period int) []float64 {
	if len(vals) < period || period <= 0 {
		return nil
	}
	k := 2.0 / (float64(period) + 1.0)
	seed := 0.0
	for _, v := range vals[:period] {
		seed += v
	}
	ema := seed / float64(period)
	out := make([]float64, 0, len(vals)-period+1)
	out = append(out, ema)
	for _, v := range vals[period:] {
		ema = v*k + ema*(1.0-k)
		out = append(out, ema)
	}
	return out
}

func EMA(vals []float64, period int) float64 {
	s := EMASeries(vals, period)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// MACD returns the MACD line, signal line and histogram for the latest
// close. Needs slow+signal-1 closes so the signal EMA has a full seed.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	if fast <= 0 || signal <= 0 || slow <= fast || len(closes) < slow+signal-1 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	fastS := EMASeries(closes, fast)
	slowS := EMASeries(closes, slow)
	offset := slow - fast
	diff := make([]float64, len(slowS))
	for i := range slowS {
		diff[i] = fastS[i+offset] - slowS[i]
	}
	sigS := EMASeries(diff, signal)
	if len(sigS) == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	line = diff[len(diff)-1]
	sig = sigS[len(sigS)-1]
	return line, sig, line - sig
}

func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}
