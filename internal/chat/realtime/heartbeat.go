package realtime

import "time"

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHeartbeatMissed   = 2
)

// HeartbeatConfig drives liveness. The server pings every Interval, and a
// connection that has sent nothing, not even a pong, for MaxMissed intervals
// is considered dead.
type HeartbeatConfig struct {
	Interval  time.Duration
	MaxMissed int
}

func (h HeartbeatConfig) withDefaults() HeartbeatConfig {
	if h.Interval <= 0 {
		h.Interval = DefaultHeartbeatInterval
	}
	if h.MaxMissed <= 0 {
		h.MaxMissed = DefaultHeartbeatMissed
	}
	return h
}

// Timeout is how long a connection may stay silent.
func (h HeartbeatConfig) Timeout() time.Duration {
	h = h.withDefaults()
	return h.Interval * time.Duration(h.MaxMissed)
}
