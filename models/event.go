package models

import (
	"encoding/json"
	"strings"
)

// Events pushed to room subscribers.
const (
	EventPeerJoined    = "peer-joined"
	EventExistingFiles = "existing-files"
	EventFileAdded     = "file-added"
	EventFileExpired   = "file-expired"
	EventError         = "error"
)

// Events accepted from clients.
const (
	EventJoinRoom  = "join-room"
	EventFileInfo  = "file-info"
	EventLeaveRoom = "leave-room"
)

// ExpiredMessage accompanies every file-expired event.
const ExpiredMessage = "File expired after 3 minutes"

// Event is a frame on the realtime channel.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Encode returns the JSON encoding of the event.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// InboundMessage is a client frame whose payload is decoded once the event is known.
type InboundMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// PeerJoined is the payload of peer-joined.
type PeerJoined struct {
	PeerLabel string `json:"peerLabel"`
}

// ExistingFiles is the payload of existing-files.
type ExistingFiles struct {
	Files []FileRecord `json:"files"`
}

// FileExpired is the payload of file-expired.
type FileExpired struct {
	PublicID string `json:"publicId"`
	Message  string `json:"message,omitempty"`
}

// ErrorPayload is the payload of error.
type ErrorPayload struct {
	Message string `json:"message"`
}

// JoinRoomRequest asks to subscribe to a room. RoomID and UserID are accepted
// as aliases used by older clients.
type JoinRoomRequest struct {
	SessionID string `json:"sessionId"`
	PeerLabel string `json:"peerLabel"`
	RoomID    string `json:"roomId,omitempty"`
	UserID    string `json:"userId,omitempty"`
}

// Normalize folds the legacy aliases into SessionID and PeerLabel.
func (r *JoinRoomRequest) Normalize() {
	r.SessionID = firstNonEmpty(r.SessionID, r.RoomID)
	r.PeerLabel = firstNonEmpty(r.PeerLabel, r.UserID)
}

// FileInfoRequest announces an uploaded file to a room.
type FileInfoRequest struct {
	SessionID string   `json:"sessionId"`
	PeerLabel string   `json:"peerLabel"`
	FileInfo  FileInfo `json:"fileInfo"`
	RoomID    string   `json:"roomId,omitempty"`
	UserID    string   `json:"userId,omitempty"`
	PublicID  string   `json:"publicId,omitempty"`
}

// Normalize folds the legacy aliases into their canonical fields.
func (r *FileInfoRequest) Normalize() {
	r.SessionID = firstNonEmpty(r.SessionID, r.RoomID)
	r.PeerLabel = firstNonEmpty(r.PeerLabel, r.UserID)
	r.FileInfo.PublicID = firstNonEmpty(r.FileInfo.PublicID, r.PublicID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
