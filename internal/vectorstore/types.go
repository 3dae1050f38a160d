package vectorstore

import "time"

// Config controls the Qdrant client.
type Config struct {
	Enabled bool
	Host    string
	Port    int
	// Documents is the collection holding ingested corpus chunks and
	// archived agent analyses.
	Documents string
	// Search params
	TopK      int
	Threshold float64
	Timeout   time.Duration
}

// Document is one retrieval hit with its payload text surfaced.
type Document struct {
	ID      string                 `json:"id"`
	Text    string                 `json:"text"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertItem is a single point written to Qdrant.
type UpsertItem struct {
	ID      interface{}            `json:"id,omitempty"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// UpsertResponse captures the basic Qdrant upsert response.
type UpsertResponse struct {
	Status string  `json:"status"`
	Time   float64 `json:"time"`
}
