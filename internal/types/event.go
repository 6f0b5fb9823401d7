package types

const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// DocumentEvent is one line of the ingest stream and one message on the
// documents topic.
type DocumentEvent struct {
	Op        string         `json:"op"`
	Index     string         `json:"index,omitempty"`
	ID        string         `json:"id,omitempty"`
	Document  map[string]any `json:"document"`
	TimeStamp int64          `json:"ts_ms"`
}

// OutcomeEvent reports the result of one slot of an indexed batch.
type OutcomeEvent struct {
	BatchID   string `json:"batch_id"`
	Slot      int    `json:"slot"`
	IndexName string `json:"index"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
	TimeStamp int64  `json:"ts_ms"`
}
