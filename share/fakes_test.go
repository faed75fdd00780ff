package share

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/cppla/sharedrop/blob"
	"github.com/cppla/sharedrop/models"
	"github.com/cppla/sharedrop/store"
)

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock only fires timers from Advance, never from AfterFunc.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	failing bool
}

func (b *fakeBlobs) Credentials(context.Context, blob.CredentialRequest) (blob.Credentials, error) {
	return blob.Credentials{Signature: "sig", Timestamp: 1, CloudName: "demo", APIKey: "key", Folder: blob.DefaultFolder}, nil
}

func (b *fakeBlobs) Delete(_ context.Context, publicID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, publicID)
	if b.failing {
		return errors.New("remote store unavailable")
	}
	return nil
}

func (b *fakeBlobs) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

// brokenStore fails every write and serves nothing.
type brokenStore struct{}

func (brokenStore) ListActive(context.Context, string) []models.FileRecord { return []models.FileRecord{} }
func (brokenStore) Append(context.Context, string, models.FileRecord) (models.FileRecord, error) {
	return models.FileRecord{}, errors.New("backend down")
}
func (brokenStore) Remove(context.Context, string, string) error { return errors.New("backend down") }
func (brokenStore) Stats(context.Context) (store.Stats, error) {
	return store.Stats{}, errors.New("backend down")
}
func (brokenStore) Close() error { return nil }

// drain returns every event queued for p without blocking.
func drain(p *Peer) []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-p.Outbox():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventsNamed(events []models.Event, name string) []models.Event {
	var out []models.Event
	for _, ev := range events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}
