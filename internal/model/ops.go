package model

import "time"

// ChannelState is a channel's operational status.
type ChannelState string

const (
	ChannelActive ChannelState = "ACTIVE"
	ChannelPaused ChannelState = "PAUSED"
)

// ChannelStatus is the persisted pause state for one channel.
// A paused channel with an elapsed cooldown counts as active.
type ChannelStatus struct {
	Channel       Channel      `json:"channel"`
	State         ChannelState `json:"state"`
	Reason        string       `json:"reason"`
	PausedAt      time.Time    `json:"paused_at,omitempty"`
	ResumedAt     time.Time    `json:"resumed_at,omitempty"`
	CooldownUntil time.Time    `json:"cooldown_until,omitempty"`
}

// ChannelMetrics aggregates one UTC day of delivery counters.
type ChannelMetrics struct {
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Bounces    int `json:"bounces"`
	Complaints int `json:"complaints"`
}

// BounceRate returns bounces/sent, 0 when nothing was sent.
func (m ChannelMetrics) BounceRate() float64 {
	if m.Sent == 0 {
		return 0
	}
	return float64(m.Bounces) / float64(m.Sent)
}

// ComplaintRate returns complaints/sent, 0 when nothing was sent.
func (m ChannelMetrics) ComplaintRate() float64 {
	if m.Sent == 0 {
		return 0
	}
	return float64(m.Complaints) / float64(m.Sent)
}

// FailRate returns failed/sent, 0 when nothing was sent.
func (m ChannelMetrics) FailRate() float64 {
	if m.Sent == 0 {
		return 0
	}
	return float64(m.Failed) / float64(m.Sent)
}

// RunRecord is one entry in the acquisition run history.
type RunRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	RunType   Channel   `json:"run_type"`
	Unstable  bool      `json:"unstable"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// IncidentEvent is one fingerprinted failure occurrence.
type IncidentEvent struct {
	ID          int64     `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	ErrorType   string    `json:"error_type"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}
