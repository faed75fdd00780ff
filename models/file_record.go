package models

import (
	"strings"
	"time"
)

// UnixMilli is a timestamp that travels as milliseconds since the epoch, which is
// what browser clients compare against Date.now().
type UnixMilli int64

// MilliOf converts t to UnixMilli.
func MilliOf(t time.Time) UnixMilli {
	return UnixMilli(t.UnixMilli())
}

// Time returns the timestamp as time.Time.
func (m UnixMilli) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// FileInfo is what a peer reports after uploading a blob directly to the blob store.
type FileInfo struct {
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// FileRecord is a shared file visible to a room until ExpiresAt.
type FileRecord struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	URL        string    `json:"url"`
	PublicID   string    `json:"publicId"`
	UploadedBy string    `json:"uploadedBy"`
	UploadedAt UnixMilli `json:"uploadedAt"`
	ExpiresAt  UnixMilli `json:"expiresAt"`
}

// NewFileRecord builds an unstamped record from reported file info.
func NewFileRecord(info FileInfo, uploadedBy string) FileRecord {
	return FileRecord{
		Name:       strings.TrimSpace(info.Name),
		Size:       info.Size,
		URL:        strings.TrimSpace(info.URL),
		PublicID:   strings.TrimSpace(info.PublicID),
		UploadedBy: uploadedBy,
	}
}

// Stamp sets UploadedAt to now and ExpiresAt to now+ttl.
func (r FileRecord) Stamp(now time.Time, ttl time.Duration) FileRecord {
	r.UploadedAt = MilliOf(now)
	r.ExpiresAt = MilliOf(now.Add(ttl))
	return r
}

// ActiveAt reports whether the record is still visible at now.
func (r FileRecord) ActiveAt(now time.Time) bool {
	return now.UnixMilli() < int64(r.ExpiresAt)
}

// Remaining returns how long the record stays visible after now, never negative.
func (r FileRecord) Remaining(now time.Time) time.Duration {
	d := r.ExpiresAt.Time().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RoomFile is the REST view of a record with the time left before expiry.
type RoomFile struct {
	FileRecord
	TimeRemaining int64 `json:"timeRemaining"` // milliseconds
}

// ToRoomFiles decorates records with their remaining lifetime at now.
func ToRoomFiles(records []FileRecord, now time.Time) []RoomFile {
	out := make([]RoomFile, 0, len(records))
	for _, r := range records {
		out = append(out, RoomFile{FileRecord: r, TimeRemaining: r.Remaining(now).Milliseconds()})
	}
	return out
}
