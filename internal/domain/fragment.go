package domain

import "time"

// Fragment is an indexed slice of one document's content plus its embedding.
// Fragments are owned exclusively by their document: a content change
// destroys every fragment and recreates them from the new content.
type Fragment struct {
	ID          string
	DocumentID  string
	TenantID    string
	Position    int // original position within the document, used as ranking tie-break
	Heading     string
	Content     string
	Embedding   []float32
	Fingerprint string // fingerprint of the document content this fragment was derived from
	CreatedAt   time.Time
}
