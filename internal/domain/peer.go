// Package domain contains entity without logic, just meta-data
package domain

// SessionID identifies a participant within the game session channel.
type SessionID string

// Peer is a remote participant known to this client. Created when the relay
// announces it, destroyed on a leave notification or unrecoverable
// connection failure.
type Peer struct {
	SessionID   SessionID `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	Speaking    bool      `json:"speaking"`
}
