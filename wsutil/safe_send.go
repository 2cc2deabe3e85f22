// Package wsutil holds small helpers shared by ws producers.
package wsutil

import "log/slog"

// SafeSend delivers data to a client channel without panicking if the
// channel was closed by a concurrent disconnect. A full channel drops the
// message; event-feed consumers tolerate gaps.
func SafeSend(ch chan []byte, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("send to closed client channel", "tag", "wsutil", "panic", r)
		}
	}()
	select {
	case ch <- data:
	default:
	}
}
