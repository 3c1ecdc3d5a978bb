package ws

import "encoding/json"

// Event types on the wire.
const (
	TypeAnnounce      = "announce"
	TypeSendMessage   = "send_message"
	TypeSearchUser    = "search_user"
	TypeRequestFriend = "request_friend"
	TypeListFriends   = "list_friends"
	TypeGetHistory    = "get_history"
	TypeError         = "error"

	resultSuffix = ".result"
)

// inbound is a client request. ID is chosen by the client and echoed on the
// reply so it can match responses to requests.
type inbound struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorReply struct {
	Error string `json:"error"`
}
