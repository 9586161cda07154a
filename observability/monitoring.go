// Package observability aggregates relay counters for the reference
// messaging backend.
package observability

import "sync/atomic"

// RelayStats counts what flows through the realtime hub and the REST
// surface. All counters are atomic; Snapshot is safe to call from the
// stats endpoint while the hub is busy.
type RelayStats struct {
	ActiveConnections int64
	FramesRelayed     uint64
	FramesDropped     uint64
	MessagesStored    uint64
	ChatsCreated      uint64
}

// StatsSnapshot is the JSON shape served by the stats endpoint.
type StatsSnapshot struct {
	ActiveConnections int64  `json:"active_connections"`
	FramesRelayed     uint64 `json:"frames_relayed"`
	FramesDropped     uint64 `json:"frames_dropped"`
	MessagesStored    uint64 `json:"messages_stored"`
	ChatsCreated      uint64 `json:"chats_created"`
}

func (s *RelayStats) ConnOpened()  { atomic.AddInt64(&s.ActiveConnections, 1) }
func (s *RelayStats) ConnClosed()  { atomic.AddInt64(&s.ActiveConnections, -1) }
func (s *RelayStats) Relayed()     { atomic.AddUint64(&s.FramesRelayed, 1) }
func (s *RelayStats) Dropped()     { atomic.AddUint64(&s.FramesDropped, 1) }
func (s *RelayStats) Stored()      { atomic.AddUint64(&s.MessagesStored, 1) }
func (s *RelayStats) ChatCreated() { atomic.AddUint64(&s.ChatsCreated, 1) }

func (s *RelayStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ActiveConnections: atomic.LoadInt64(&s.ActiveConnections),
		FramesRelayed:     atomic.LoadUint64(&s.FramesRelayed),
		FramesDropped:     atomic.LoadUint64(&s.FramesDropped),
		MessagesStored:    atomic.LoadUint64(&s.MessagesStored),
		ChatsCreated:      atomic.LoadUint64(&s.ChatsCreated),
	}
}
