package motion

import "time"

// State selects the analysis cadence: how often the sliding-window scan
// runs. Detections promote to Fast for a quick reconfirm; sustained misses
// demote through Low to Background to save battery.
type State int

const (
	StateNormal State = iota
	StateFast
	StateLow
	StateBackground
)

func (s State) String() string {
	switch s {
	case StateFast:
		return "fast"
	case StateLow:
		return "low"
	case StateBackground:
		return "background"
	default:
		return "normal"
	}
}

// nextState derives the cadence from the consecutive analysis outcomes.
func nextState(consecutiveDriving, consecutiveIdle int, cfg Config) State {
	switch {
	case consecutiveDriving > 0:
		return StateFast
	case consecutiveIdle >= cfg.BackgroundAfter:
		return StateBackground
	case consecutiveIdle >= cfg.LowAfter:
		return StateLow
	default:
		return StateNormal
	}
}

func (c Config) interval(s State) time.Duration {
	switch s {
	case StateFast:
		return c.FastInterval
	case StateLow:
		return c.LowInterval
	case StateBackground:
		return c.BackgroundInterval
	default:
		return c.NormalInterval
	}
}
