package domain

import "testing"

func TestPointsBoundaries(t *testing.T) {
	cases := []struct {
		name      string
		correct   bool
		latencyMS int
		want      int
	}{
		{"incorrect is always zero", false, 0, 0},
		{"incorrect stays zero when slow", false, 30000, 0},
		{"instant answer", true, 0, 1000},
		{"one second", true, 1000, 950},
		{"segment seam at two seconds", true, 2000, 900},
		{"mid second segment", true, 8500, 650},
		{"end of second segment", true, 15000, 400},
		{"beyond fifteen seconds", true, 20000, 400},
		{"negative latency clamps", true, -50, 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Points(tc.correct, tc.latencyMS); got != tc.want {
				t.Fatalf("Points(%v, %d) = %d, want %d", tc.correct, tc.latencyMS, got, tc.want)
			}
		})
	}
}

func TestPointsMonotonicAndBounded(t *testing.T) {
	prev := 1001
	for latency := 0; latency <= 30000; latency += 50 {
		got := Points(true, latency)
		if got > prev {
			t.Fatalf("points increased with latency: %d ms -> %d, previous %d", latency, got, prev)
		}
		if got < 400 || got > 1000 {
			t.Fatalf("points out of [400,1000] for correct answer: %d ms -> %d", latency, got)
		}
		prev = got
	}
}

func TestPointsExampleFromLiveRound(t *testing.T) {
	// 1.5s correct answer is worth 1000 - 0.75*100.
	if got := Points(true, 1500); got != 925 {
		t.Fatalf("Points(true, 1500) = %d, want 925", got)
	}
}
