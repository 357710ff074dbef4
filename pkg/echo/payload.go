package echo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrBadPayload = errors.New("echo: malformed ping payload")

// FormatPing builds the request payload "ping <seq> <unix-ts>"
func FormatPing(seq int, t time.Time) string {
	ts := float64(t.UnixNano()) / 1e9
	return "ping " + strconv.Itoa(seq) + " " + strconv.FormatFloat(ts, 'f', 6, 64)
}

// ParsePing parses a request or its upper-cased echo
func ParsePing(s string) (int, time.Time, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 || !strings.EqualFold(fields[0], "ping") {
		return 0, time.Time{}, fmt.Errorf("%w: %q", ErrBadPayload, s)
	}

	seq, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: sequence %q", ErrBadPayload, fields[1])
	}
	ts, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: timestamp %q", ErrBadPayload, fields[2])
	}

	sec, frac := math.Modf(ts)
	return seq, time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3), nil
}

// ExpectedReply is what a server echoes for req
func ExpectedReply(req string) string {
	return strings.ToUpper(req)
}
