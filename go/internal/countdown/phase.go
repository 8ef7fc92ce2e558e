package countdown

import (
	"fmt"
	"strings"
	"time"
)

// Phase is the time-derived lifecycle stage of an auction.
type Phase int

const (
	NotStarted Phase = iota
	Live
	Ended
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "NotStarted"
	case Live:
		return "Live"
	case Ended:
		return "Ended"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText lets phases render by name in JSON views.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name.
func (p *Phase) UnmarshalText(text []byte) error {
	switch string(text) {
	case "NotStarted":
		*p = NotStarted
	case "Live":
		*p = Live
	case "Ended":
		*p = Ended
	default:
		return fmt.Errorf("unknown phase %q", text)
	}
	return nil
}

// Urgency is the coarse display class of a countdown.
type Urgency string

const (
	UrgencyActive     Urgency = "active"
	UrgencyStarting   Urgency = "starting"
	UrgencyEndingSoon Urgency = "ending-soon"
	UrgencyEnded      Urgency = "ended"
)

const (
	// EndedLabel is rendered instead of a zero countdown.
	EndedLabel = "Auction Ended"

	// zeroLeftLabel is the legacy rendering of a zero countdown; consumers
	// must treat it exactly like EndedLabel.
	zeroLeftLabel = "0m 0s left"

	endingSoonThreshold = int64(time.Hour / time.Second)
)

// Status is the result of ComputePhase.
type Status struct {
	Phase            Phase `json:"phase"`
	RemainingSeconds int64 `json:"remainingSeconds"`
}

// ComputePhase derives the phase and remaining whole seconds from the auction
// window at the given instant. Remainders are floored and never negative.
func ComputePhase(now, start, end time.Time) Status {
	switch {
	case now.Before(start):
		return Status{Phase: NotStarted, RemainingSeconds: floorSeconds(start.Sub(now))}
	case now.Before(end):
		return Status{Phase: Live, RemainingSeconds: floorSeconds(end.Sub(now))}
	default:
		return Status{Phase: Ended, RemainingSeconds: 0}
	}
}

func floorSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}

type unit struct {
	suffix  string
	seconds int64
}

var units = []unit{
	{suffix: "d", seconds: 24 * 60 * 60},
	{suffix: "h", seconds: 60 * 60},
	{suffix: "m", seconds: 60},
	{suffix: "s", seconds: 1},
}

// FormatRemaining renders the largest two nonzero units among days, hours,
// minutes and seconds with a "to start" or "left" suffix. A zero countdown
// renders EndedLabel, except in the sub-second window before a start, which
// renders "0s to start". IsEndedLabel is false for that label.
func FormatRemaining(remainingSeconds int64, phase Phase) string {
	suffix := "left"
	if phase == NotStarted {
		suffix = "to start"
	}

	if remainingSeconds <= 0 {
		if phase == NotStarted {
			return "0s " + suffix
		}
		return EndedLabel
	}

	parts := make([]string, 0, 2)
	rest := remainingSeconds
	for _, u := range units {
		n := rest / u.seconds
		rest %= u.seconds
		if n == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", n, u.suffix))
		if len(parts) == 2 {
			break
		}
	}

	return strings.Join(parts, " ") + " " + suffix
}

// IsEndedLabel reports whether a rendered countdown means the auction is over.
// "0s to start" is not an ended label.
func IsEndedLabel(label string) bool {
	label = strings.TrimSpace(label)
	return label == EndedLabel || label == zeroLeftLabel
}

// ClassifyUrgency maps a phase and remainder onto a display class.
func ClassifyUrgency(phase Phase, remainingSeconds int64) Urgency {
	switch {
	case phase == Ended:
		return UrgencyEnded
	case phase == NotStarted:
		return UrgencyStarting
	case remainingSeconds <= 0:
		return UrgencyEnded
	case remainingSeconds < endingSoonThreshold:
		return UrgencyEndingSoon
	default:
		return UrgencyActive
	}
}
