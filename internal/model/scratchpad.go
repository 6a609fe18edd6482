// Package model defines core data structures and types for scratchpad documents.
package model

import (
	"fmt"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

type DocumentID string

// DocumentIDPattern keeps ids safe as file names, object keys and URL path segments.
var DocumentIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

func (id DocumentID) Validate() error {
	return validation.Validate(string(id), validation.Required, validation.Match(DocumentIDPattern))
}

// Version is assigned by the store and grows by one on every write. Zero means the
// document was never written.
type Version int64

type WriteMode string

const (
	WriteReplace WriteMode = "replace"
	WriteAppend  WriteMode = "append"
)

func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case "", WriteReplace:
		return WriteReplace, nil
	case WriteAppend:
		return WriteAppend, nil
	default:
		return "", fmt.Errorf("unknown write mode %q", s)
	}
}

type Scratchpad struct {
	ID DocumentID

	Content []byte

	// sha256 of Content, used by pollers to detect out-of-band writes.
	ContentHash string

	Version    Version
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Apply returns the content that results from writing data with the given mode.
func (s *Scratchpad) Apply(data []byte, mode WriteMode) []byte {
	if mode != WriteAppend || len(s.Content) == 0 {
		return data
	}

	out := make([]byte, 0, len(s.Content)+len(data)+1)
	out = append(out, s.Content...)
	if out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, data...)
}

// DocumentInfo is the lightweight listing entry used to detect changes without
// loading content.
type DocumentInfo struct {
	ID          DocumentID `json:"id"`
	Version     Version    `json:"version"`
	ContentHash string     `json:"content_hash"`
}
