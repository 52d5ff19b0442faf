// Package knowledge provides the vector search store backing the RAG
// module. Documents are grouped into named collections, embedded through
// a Genkit embedder, and searched with pgvector cosine distance.
package knowledge

import "time"

// DefaultCollection receives documents ingested without an explicit
// collection name.
const DefaultCollection = "default"

// VectorDimension is the embedding width the documents table is migrated
// with. Embedders producing a different width fail at insert time.
const VectorDimension = 768

// Document is a stored text fragment with its metadata.
type Document struct {
	ID         string            `json:"id"`
	Collection string            `json:"collection"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Result is a search hit with its similarity score (1 is identical,
// 0 is orthogonal).
type Result struct {
	Document
	Similarity float64 `json:"similarity"`
}

// CollectionInfo summarizes a collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Documents int    `json:"documents"`
}
