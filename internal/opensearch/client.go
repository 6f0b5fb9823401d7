package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BRO3886/docbatch/internal/config"
	"github.com/BRO3886/docbatch/internal/transport"
	external "github.com/opensearch-project/opensearch-go/v2"
	api "github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Client is a transport.Transport backed by the OpenSearch client. Async
// sends are limited to max_in_flight concurrent requests.
type Client struct {
	client *external.Client
	sem    *semaphore.Weighted
	logger *zap.Logger
}

var _ transport.Transport = (*Client)(nil)

// New builds the client from c. A non-positive max_in_flight falls back to
// config.DefaultMaxInFlight.
func New(c *config.Config, logger *zap.Logger) (*Client, error) {
	maxInFlight := c.Opensearch.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = config.DefaultMaxInFlight
	}

	httpTransport := http.DefaultTransport.(*http.Transport).Clone()
	if c.Opensearch.InsecureSkipVerify {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	httpTransport.MaxIdleConnsPerHost = maxInFlight

	client, err := external.NewClient(external.Config{
		Transport:    httpTransport,
		Addresses:    c.Opensearch.URLs,
		Username:     c.Opensearch.Username,
		Password:     c.Opensearch.Password,
		MaxRetries:   c.Opensearch.MaxRetries,
		DisableRetry: c.Opensearch.MaxRetries == 0,
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}

	return &Client{
		client: client,
		sem:    semaphore.NewWeighted(int64(maxInFlight)),
		logger: logger.Named("opensearch"),
	}, nil
}

func (s *Client) SendSync(ctx context.Context, req transport.Request) (*transport.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL(), body)
	if err != nil {
		return nil, &transport.TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	res, err := s.client.Perform(httpReq)
	if err != nil {
		return nil, &transport.TransportError{Method: req.Method, Path: req.Path, Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &transport.TransportError{
			Method:     req.Method,
			Path:       req.Path,
			StatusCode: res.StatusCode,
			Err:        fmt.Errorf("read body: %w", err),
		}
	}

	resp := &transport.Response{Status: res.StatusCode, Body: raw, Header: res.Header}
	if err := transport.CheckStatus(req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// SendAsync waits for a free slot on its own goroutine, so it never blocks
// the caller. If ctx ends before a slot frees up, done gets the ctx error.
func (s *Client) SendAsync(ctx context.Context, req transport.Request, done transport.Callback) {
	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			done(nil, &transport.TransportError{Method: req.Method, Path: req.Path, Err: err})
			return
		}
		resp, err := s.SendSync(ctx, req)
		s.sem.Release(1)

		if err != nil {
			s.logger.Debug("async request failed",
				zap.String("method", req.Method),
				zap.String("path", req.Path),
				zap.Error(err),
			)
		}
		done(resp, err)
	}()
}

// EnsureIndex creates index with a single shard and no replicas unless it
// already exists.
func (s *Client) EnsureIndex(ctx context.Context, index string) error {
	if resp, err := s.client.Indices.Exists([]string{index}, s.client.Indices.Exists.WithContext(ctx)); err == nil {
		resp.Body.Close()
		// early return if index already exists
		if resp.StatusCode == http.StatusOK {
			return nil
		}
	}

	settings := strings.NewReader(`{
        "settings": {
            "index": {
                "number_of_shards": 1,
                "number_of_replicas": 0
            }
        }
    }`)

	req := api.IndicesCreateRequest{
		Index: index,
		Body:  settings,
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.IsError() {
		return fmt.Errorf("failed to create index: %s %s", resp.Status(), string(body))
	}

	if resp.HasWarnings() {
		s.logger.Warn("create index warnings", zap.Strings("warnings", resp.Warnings()))
	}

	s.logger.Info("index created", zap.String("index", index))

	return nil
}

func (s *Client) DeIndex(ctx context.Context, index, id string) error {
	req := api.DeleteRequest{
		Index:      index,
		DocumentID: id,
	}

	resp, err := req.Do(ctx, s.client)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	// already gone counts as deleted so a redelivered delete does not stall
	if resp.StatusCode == http.StatusNotFound {
		s.logger.Debug("document already absent", zap.String("index", index), zap.String("id", id))
		return nil
	}

	if resp.IsError() {
		return fmt.Errorf("failed to delete document: %s %s", resp.Status(), string(body))
	}

	s.logger.Info("document deleted", zap.String("index", index), zap.String("id", id))

	return nil
}
