package models

import "encoding/json"

// Collections a live subscription can follow.
const (
	CollectionPosts    = "posts"
	CollectionComments = "comments"
)

// Client operations on the live socket.
const (
	LiveOpSubscribe   = "subscribe"
	LiveOpUnsubscribe = "unsubscribe"
)

// Server message types on the live socket.
const (
	LiveMsgSnapshot = "snapshot"
	LiveMsgReleased = "released"
	LiveMsgError    = "error"
)

// LiveRequest is a message sent by a client over the live socket.
type LiveRequest struct {
	Op         string `json:"op"`
	Sub        string `json:"sub"`
	Collection string `json:"collection,omitempty"`
	PostID     uint   `json:"post_id,omitempty"`
}

// LiveMessage is a message pushed by the server. Docs holds the full ordered
// result set for snapshots, newest first.
type LiveMessage struct {
	Type  string          `json:"type"`
	Sub   string          `json:"sub,omitempty"`
	Docs  json.RawMessage `json:"docs,omitempty"`
	Error string          `json:"error,omitempty"`
}
