// Package query builds the requests sent to the cluster.
package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/BRO3886/docbatch/internal/transport"
)

var prettyParams = map[string]string{"pretty": "true"}

type lookupBody struct {
	IDs []string `json:"ids"`
}

// BuildLookup returns one multi-get request for ids. Order and duplicates
// are kept; an empty list yields {"ids":[]}.
func BuildLookup(index string, ids []string) transport.Request {
	body := lookupBody{IDs: make([]string, len(ids))}
	copy(body.IDs, ids)

	// a []string cannot fail to marshal
	raw, _ := json.Marshal(body)
	return transport.NewRequest(
		http.MethodGet,
		"/"+url.PathEscape(index)+"/_mget",
		prettyParams,
		raw,
		transport.ContentTypeJSON,
	)
}

// IndexDocument posts doc without an id so the cluster assigns one.
func IndexDocument(index string, doc any) (transport.Request, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return transport.Request{}, fmt.Errorf("marshal document: %w", err)
	}
	return transport.NewRequest(
		http.MethodPost,
		"/"+url.PathEscape(index)+"/_doc/",
		prettyParams,
		raw,
		transport.ContentTypeJSON,
	), nil
}

// IndexDocumentID writes doc under id, or behaves like IndexDocument when
// id is empty.
func IndexDocumentID(index, id string, doc any) (transport.Request, error) {
	if id == "" {
		return IndexDocument(index, doc)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return transport.Request{}, fmt.Errorf("marshal document: %w", err)
	}
	return transport.NewRequest(
		http.MethodPut,
		"/"+url.PathEscape(index)+"/_doc/"+url.PathEscape(id),
		prettyParams,
		raw,
		transport.ContentTypeJSON,
	), nil
}

func CounterDocument(i int) map[string]any {
	return map[string]any{"customCountField": strconv.Itoa(i)}
}
