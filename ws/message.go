package ws

// Event is one guild-scoped notification pushed to subscribed clients.
type Event struct {
	Type    string `json:"type"` // result_recorded, match_undone, guild_deleted
	Guild   string `json:"guild"`
	Payload any    `json:"payload,omitempty"`
}

// Event types emitted by the API layer.
const (
	EventResultRecorded = "result_recorded"
	EventMatchUndone    = "match_undone"
	EventGuildDeleted   = "guild_deleted"
)

// subscribeMsg is the only message clients send: subscribe or unsubscribe
// to a guild's event stream.
type subscribeMsg struct {
	Type  string `json:"type"` // "subscribe" | "unsubscribe"
	Guild string `json:"guild"`
}
