package domain

// Points converts answer correctness and response latency into a score.
//
// Wrong answers are worth nothing. Correct answers decay linearly with
// latency in two segments: 1000 down to 900 over the first two seconds,
// then 900 down to 400 by second fifteen, flat 400 beyond that. The result
// is truncated toward zero and never negative.
func Points(correct bool, latencyMS int) int {
	if !correct {
		return 0
	}
	if latencyMS < 0 {
		latencyMS = 0
	}

	seconds := float64(latencyMS) / 1000.0
	var points float64
	switch {
	case seconds <= 2:
		points = 1000 - (seconds/2.0)*100
	case seconds <= 15:
		points = 900 - ((seconds-2)/13.0)*500
	default:
		points = 400
	}

	if points < 0 {
		return 0
	}
	return int(points)
}
