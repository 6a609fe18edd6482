// Package provider implements scratchpad.ContentProvider over the HTTP API and over a
// local store.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/debemdeboas/scratchpad/internal/config"
	"github.com/debemdeboas/scratchpad/internal/model"
	"github.com/debemdeboas/scratchpad/internal/repository"
	"github.com/debemdeboas/scratchpad/internal/routes"
)

var providerLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	providerLogger = l
}

var ErrUnexpectedStatus = errors.New("unexpected status")

// Responses larger than this are rejected.
const maxResponseBytes = 16 << 20

type HTTP struct { // implements scratchpad.ContentProvider
	url    string
	client *http.Client
}

func NewHTTP(serverURL string, doc model.DocumentID, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		url:    routes.ScratchpadURL(serverURL, doc),
		client: client,
	}
}

func (p *HTTP) FetchContent(ctx context.Context) (*model.Scratchpad, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	return p.do(req)
}

func (p *HTTP) UpdateContent(ctx context.Context, payload []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	body, err := json.Marshal(model.WriteRequest{Content: string(payload), Mode: mode})
	if err != nil {
		return nil, fmt.Errorf("error encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set(config.HCType, config.CTypeJSON)
	return p.do(req)
}

func (p *HTTP) do(req *http.Request) (*model.Scratchpad, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error calling %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		providerLogger.Debug().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Request failed")
		return nil, fmt.Errorf("%w %d from %s %s", ErrUnexpectedStatus, resp.StatusCode, req.Method, req.URL.Path)
	}

	var doc model.DocumentResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return doc.Scratchpad(), nil
}

// Local reads and writes one document of a store directly.
type Local struct { // implements scratchpad.ContentProvider
	store repository.Store
	doc   model.DocumentID

	// Called after every successful write, for example to broadcast the new version.
	OnWrite func(*model.Scratchpad)
}

func NewLocal(store repository.Store, doc model.DocumentID) *Local {
	return &Local{store: store, doc: doc}
}

func (p *Local) FetchContent(ctx context.Context) (*model.Scratchpad, error) {
	return repository.GetOrEmpty(ctx, p.store, p.doc)
}

func (p *Local) UpdateContent(ctx context.Context, payload []byte, mode model.WriteMode) (*model.Scratchpad, error) {
	doc, err := p.store.Put(ctx, p.doc, payload, mode)
	if err != nil {
		return nil, err
	}
	if p.OnWrite != nil {
		p.OnWrite(doc)
	}
	return doc, nil
}
