package stats

import "time"

// Summarize derives loss and RTT statistics from attempts. RTT statistics
// cover successful attempts only and are zero when there are none.
func Summarize(attempts []Attempt) Summary {
	s := Summary{Sent: len(attempts)}

	var total time.Duration
	for _, a := range attempts {
		if !a.OK() {
			continue
		}
		if s.Received == 0 || a.RTT < s.MinRTT {
			s.MinRTT = a.RTT
		}
		if a.RTT > s.MaxRTT {
			s.MaxRTT = a.RTT
		}
		total += a.RTT
		s.Received++
	}

	s.Lost = s.Sent - s.Received
	if s.Sent > 0 {
		s.LossPercent = float64(s.Lost) / float64(s.Sent) * 100
	}
	if s.Received > 0 {
		s.AvgRTT = total / time.Duration(s.Received)
	}

	s.MinRTTMs = durationMs(s.MinRTT)
	s.AvgRTTMs = durationMs(s.AvgRTT)
	s.MaxRTTMs = durationMs(s.MaxRTT)
	return s
}
