package types

import (
	"fmt"
	"strings"
)

type IndexableDocument struct {
	Id        string
	IndexName string
	Data      map[string]any
	DeIndex   bool
}

// GetIndexableDoc validates event and resolves its target index, falling
// back to defaultIndex. Index operations may omit the id; the cluster then
// assigns one.
func GetIndexableDoc(event DocumentEvent, defaultIndex string) (*IndexableDocument, error) {
	indexName := event.Index
	if indexName == "" {
		indexName = defaultIndex
	}
	if indexName == "" {
		return nil, fmt.Errorf("no index for event")
	}

	id := strings.TrimSpace(event.ID)

	switch event.Op {
	case OpDelete:
		if id == "" {
			return nil, fmt.Errorf("delete event without id")
		}
		return &IndexableDocument{Id: id, IndexName: indexName, DeIndex: true}, nil
	case OpIndex, "":
		if len(event.Document) == 0 {
			return nil, fmt.Errorf("document is empty for %q", id)
		}
		return &IndexableDocument{Id: id, IndexName: indexName, Data: event.Document}, nil
	default:
		return nil, fmt.Errorf("unknown op: %s", event.Op)
	}
}
