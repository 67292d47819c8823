package chunkstore

// Span is a half-open character range [Start, End) within some text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// BBox is a bounding box on a source page, in page coordinates.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Chunk is a stored, position-tagged unit of source text. Chunks are
// immutable once stored; they are produced by ingestion and owned by the
// store.
type Chunk struct {
	// ID is the unique chunk identifier.
	ID string `json:"id"`

	// DocumentID identifies the source document.
	DocumentID string `json:"document_id"`

	// DocumentName is the display name of the source document.
	DocumentName string `json:"document_name"`

	// Content is the chunk text.
	Content string `json:"content"`

	// PageNumber is the 1-based page the chunk came from, when known.
	PageNumber *int `json:"page_number,omitempty"`

	// PageSpan is the chunk's character range within its page, when known.
	PageSpan *Span `json:"page_span,omitempty"`

	// DocumentSpan is the chunk's character range within the whole
	// document, when known.
	DocumentSpan *Span `json:"document_span,omitempty"`

	// BBox is the chunk's bounding box on the page, when known.
	BBox *BBox `json:"bbox,omitempty"`

	// Embedding is the chunk's vector embedding. May be nil when the chunk
	// has not been embedded yet; AddChunks fills it in via the embedder.
	Embedding []float32 `json:"-"`
}

// ScoredChunk is a chunk with a similarity score from vector search.
type ScoredChunk struct {
	Chunk
	// Score is the similarity score (higher = more similar).
	Score float32
}

// VectorHit is a raw vector index result: a chunk id and its similarity.
type VectorHit struct {
	ID    string
	Score float32
}
