package sse

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/routes"
)

const HClientID = "X-Client-ID"

const DefaultReconnectDelay = 3 * time.Second

// Subscriber follows the version stream of one document, reconnecting after the
// connection drops.
type Subscriber struct {
	url            string
	clientID       string
	httpClient     *http.Client
	reconnectDelay time.Duration
	onVersion      func(model.Version)
	onConnect      func()
}

type SubscriberOption func(*Subscriber)

func WithReconnectDelay(d time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.reconnectDelay = d
	}
}

func WithHTTPClient(c *http.Client) SubscriberOption {
	return func(s *Subscriber) {
		s.httpClient = c
	}
}

// WithOnConnect registers fn to run after every successful (re)connection.
func WithOnConnect(fn func()) SubscriberOption {
	return func(s *Subscriber) {
		s.onConnect = fn
	}
}

func NewSubscriber(serverURL string, doc model.DocumentID, onVersion func(model.Version), opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url:            routes.SSEURL(serverURL, doc),
		clientID:       uuid.NewString(),
		httpClient:     &http.Client{},
		reconnectDelay: DefaultReconnectDelay,
		onVersion:      onVersion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClientID identifies this subscriber to the server across reconnections.
func (s *Subscriber) ClientID() string {
	return s.clientID
}

// Run blocks until ctx is done.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		err := s.stream(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			sseLogger.Warn().Err(err).Str("url", s.url).Dur("retry_in", s.reconnectDelay).Msg("Event stream failed")
		} else {
			sseLogger.Info().Str("url", s.url).Msg("Event stream closed by server")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Subscriber) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", config.CTypeEventStream)
	req.Header.Set(HClientID, s.clientID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error connecting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	return ReadEvents(resp.Body, func(e Event) {
		switch e.Name {
		case EventConnected:
			sseLogger.Debug().Str("client_id", s.clientID).Msg("Event stream connected")
			if s.onConnect != nil {
				s.onConnect()
			}
		case EventVersion:
			version, err := strconv.ParseInt(e.Data, 10, 64)
			if err != nil {
				sseLogger.Warn().Str("data", e.Data).Msg("Ignoring malformed version event")
				return
			}
			s.onVersion(model.Version(version))
		}
	})
}
