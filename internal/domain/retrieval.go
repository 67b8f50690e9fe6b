package domain

import "time"

// RetrievedChunk is a chunk paired with the relevance score it earned for one
// query. Scores are comparable across the sparse and dense paths only after
// fusion; DenseScore keeps the raw cosine similarity for tie-breaking.
type RetrievedChunk struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Text       string    `json:"text"`
	Score      float64   `json:"score"`
	DenseScore float64   `json:"dense_score,omitempty"`
	IngestedAt time.Time `json:"ingested_at,omitempty"`
	Embedding  []float32 `json:"-"`
}

// RetrievalResult is the ranked output of the hybrid engine. Degraded marks a
// response produced from the sparse path alone because the dense path failed.
type RetrievalResult struct {
	Chunks   []RetrievedChunk
	Degraded bool
}
