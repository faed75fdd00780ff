// Package store keeps the live file records of every share room.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cppla/sharedrop/models"
)

const (
	DefaultFileTTL       = 3 * time.Minute
	DefaultIdleGrace     = 30 * time.Minute
	DefaultRoomTTL       = 30 * time.Minute
	DefaultSweepInterval = 10 * time.Second
)

// ErrInvalidRecord is returned by Append for records that cannot be stored.
var ErrInvalidRecord = errors.New("invalid file record")

// Stats summarizes the store for the admin endpoint.
type Stats struct {
	Rooms int `json:"rooms"`
	Files int `json:"files"`
}

// RoomStore holds the live file records of each room.
//
// Reads fail open: a backend error yields an empty list. Writes fail closed.
type RoomStore interface {
	// ListActive returns the records of sessionID whose deadline has not passed.
	ListActive(ctx context.Context, sessionID string) []models.FileRecord
	// Append stamps rec with its upload time and deadline and adds it to the room,
	// replacing any record with the same public ID.
	Append(ctx context.Context, sessionID string, rec models.FileRecord) (models.FileRecord, error)
	// Remove drops a record. Removing an absent record is not an error.
	Remove(ctx context.Context, sessionID, publicID string) error
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Sweeper is implemented by backends that need a periodic cleanup loop.
type Sweeper interface {
	Run(ctx context.Context)
}

func validate(sessionID string, rec models.FileRecord) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidRecord)
	}
	if rec.PublicID == "" {
		return fmt.Errorf("%w: empty public id", ErrInvalidRecord)
	}
	if rec.Size < 0 {
		return fmt.Errorf("%w: negative size", ErrInvalidRecord)
	}
	return nil
}

func withoutPublicID(files []models.FileRecord, publicID string) []models.FileRecord {
	out := make([]models.FileRecord, 0, len(files))
	for _, f := range files {
		if f.PublicID != publicID {
			out = append(out, f)
		}
	}
	return out
}

func activeOnly(files []models.FileRecord, now time.Time) []models.FileRecord {
	out := make([]models.FileRecord, 0, len(files))
	for _, f := range files {
		if f.ActiveAt(now) {
			out = append(out, f)
		}
	}
	return out
}
