package model

import "time"

// DocumentResponse is the JSON form of a Scratchpad served by the API.
type DocumentResponse struct {
	ID          DocumentID `json:"id"`
	Content     string     `json:"content"`
	Version     Version    `json:"version"`
	ContentHash string     `json:"content_hash"`
	ModifiedAt  time.Time  `json:"modified_at"`
}

// WriteRequest is the body of a PUT to the scratchpad API.
type WriteRequest struct {
	Content string    `json:"content"`
	Mode    WriteMode `json:"mode,omitempty"`
}

func NewDocumentResponse(s *Scratchpad) DocumentResponse {
	return DocumentResponse{
		ID:          s.ID,
		Content:     string(s.Content),
		Version:     s.Version,
		ContentHash: s.ContentHash,
		ModifiedAt:  s.ModifiedAt,
	}
}

func (r DocumentResponse) Scratchpad() *Scratchpad {
	return &Scratchpad{
		ID:          r.ID,
		Content:     []byte(r.Content),
		ContentHash: r.ContentHash,
		Version:     r.Version,
		ModifiedAt:  r.ModifiedAt,
	}
}
