// Package sse streams scratchpad version changes to clients over Server-Sent Events.
package sse

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/model"
)

var sseLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

const (
	EventConnected = "connected"
	EventVersion   = "version"
)

type Event struct {
	Name string
	Data string
}

// VersionEvent announces that document reached version.
func VersionEvent(version model.Version) Event {
	return Event{Name: EventVersion, Data: strconv.FormatInt(int64(version), 10)}
}

type Client struct {
	ID         string
	Msg        chan Event
	DocumentID model.DocumentID
}

// NewClient returns a client for doc. Up to 16 events are buffered; slower clients
// miss events.
func NewClient(doc model.DocumentID) *Client {
	return &Client{
		ID:         uuid.NewString(),
		Msg:        make(chan Event, 16),
		DocumentID: doc,
	}
}

type Clients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewClients() *Clients {
	return &Clients{
		clients: make(map[*Client]bool),
	}
}

func (s *Clients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *Clients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

// Count returns the number of clients following doc.
func (s *Clients) Count(doc model.DocumentID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for client := range s.clients {
		if client.DocumentID == doc {
			n++
		}
	}
	return n
}

// Broadcast sends event to every client following doc without blocking.
func (s *Clients) Broadcast(doc model.DocumentID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.DocumentID == doc {
			select {
			case client.Msg <- event:
			default:
				sseLogger.Warn().Str("client_id", client.ID).Str("event", event.Name).Msg("Client buffer full, dropping event")
			}
		}
	}
}

func (s *Clients) BroadcastVersion(doc model.DocumentID, version model.Version) {
	s.Broadcast(doc, VersionEvent(version))
}
