// Package session provides the conversation buffer and durable session list
// for MindBridge chat clients. The active conversation accumulates turns in
// memory; closing the chat flushes it into a persisted, newest-first list of
// session records that can be listed, replayed, and deleted later.
package session

// Turn roles.
const (
	// RoleUser marks a turn authored by the user.
	RoleUser = "user"
	// RoleModel marks a turn generated by the model.
	RoleModel = "model"
)

// Turn is one message exchange unit. Turns are immutable once created and
// ordered by occurrence.
type Turn struct {
	// Role is "user" or "model".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// Record is a persisted snapshot of a completed conversation buffer.
// Records are immutable after creation except for deletion.
type Record struct {
	// ID is the creation time in unix milliseconds. IDs are unique within
	// the stored list.
	ID int64 `json:"id"`
	// Date is the display timestamp for the record.
	Date string `json:"date"`
	// Messages holds the buffered turns in order.
	Messages []Turn `json:"messages"`
	// Preview is a short summary derived from the first user turn.
	Preview string `json:"preview"`
}
