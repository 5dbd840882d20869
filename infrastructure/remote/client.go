package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"grocerylist/application/ports"
	"grocerylist/domain/core/entities"
	"grocerylist/domain/core/valueobjects"
	pkgerrors "grocerylist/pkg/errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ResourcePath is the collection served by the remote store
const ResourcePath = "/groceryItems"

// Operation names carried by remote errors
const (
	OpList   = "list"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

var failureMessages = map[string]string{
	OpList:   "Failed to fetch grocery items",
	OpCreate: "Failed to create grocery item",
	OpUpdate: "Failed to update grocery item",
	OpDelete: "Failed to delete grocery item",
}

const maxErrorBody = 64 << 10

// Client talks to the groceryItems resource over HTTP. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	ids        valueobjects.IDGenerator
	now        func() time.Time
	metrics    ports.RemoteMetrics
	tracer     trace.Tracer
	logger     *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithIDGenerator sets the generator used for ids the caller did not assign
func WithIDGenerator(ids valueobjects.IDGenerator) Option {
	return func(c *Client) { c.ids = ids }
}

// WithClock sets the time source for createdAt
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithMetrics records every request
func WithMetrics(m ports.RemoteMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the store rooted at baseURL
func NewClient(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		ids:        valueobjects.TimeOrderedIDs{},
		now:        time.Now,
		tracer:     otel.Tracer("grocerylist/remote"),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.RemoteStore = (*Client)(nil)

// List returns every item in store order
func (c *Client) List(ctx context.Context) ([]entities.GroceryItem, error) {
	var items []entities.GroceryItem
	if err := c.do(ctx, OpList, http.MethodGet, ResourcePath, nil, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []entities.GroceryItem{}
	}
	return items, nil
}

// Create assigns id, bought=false and createdAt, then posts the item
func (c *Client) Create(ctx context.Context, item entities.NewItem) (entities.GroceryItem, error) {
	id := item.ID
	if id.IsZero() {
		id = c.ids.NewID()
	}
	payload := entities.NewGroceryItem(id, item.Title, item.Amount, c.now().Truncate(time.Millisecond))

	created := payload
	if err := c.do(ctx, OpCreate, http.MethodPost, ResourcePath, payload, &created); err != nil {
		return entities.GroceryItem{}, err
	}
	return created, nil
}

// Update patches the given fields of one item
func (c *Client) Update(ctx context.Context, id valueobjects.ItemID, patch entities.ItemPatch) (entities.GroceryItem, error) {
	var updated entities.GroceryItem
	if err := c.do(ctx, OpUpdate, http.MethodPatch, itemPath(id), patch, &updated); err != nil {
		return entities.GroceryItem{}, err
	}
	if updated.ID.IsZero() {
		updated.ID = id
	}
	return updated, nil
}

// Delete removes one item; the response body is ignored
func (c *Client) Delete(ctx context.Context, id valueobjects.ItemID) error {
	return c.do(ctx, OpDelete, http.MethodDelete, itemPath(id), nil, nil)
}

func itemPath(id valueobjects.ItemID) string {
	return ResourcePath + "/" + url.PathEscape(id.String())
}

type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) (err error) {
	ctx, span := c.tracer.Start(ctx, "remote."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)
	start := time.Now()
	status := 0

	defer func() {
		if c.metrics != nil {
			c.metrics.RecordRemoteRequest(ctx, op, status, time.Since(start).Seconds(), err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn("Remote request failed",
				zap.String("operation", op),
				zap.String("method", method),
				zap.String("path", path),
				zap.Int("status", status),
				zap.Error(err),
			)
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		buf, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return pkgerrors.NewInternalError(fmt.Sprintf("encode %s request", op)).WithCause(marshalErr)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return pkgerrors.NewRemoteRequestError(op, 0, failureMessages[op], err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.NewRemoteRequestError(op, 0, failureMessages[op], err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if status < 200 || status > 299 {
		message := failureMessages[op]
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var eb errorBody
		if len(raw) > 0 && json.Unmarshal(raw, &eb) == nil && eb.Message != "" {
			message = eb.Message
		}
		return pkgerrors.NewRemoteRequestError(op, status, message, nil)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.NewRemoteRequestError(op, 0, failureMessages[op], err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pkgerrors.NewRemoteRequestError(op, status, "malformed response from grocery store", err)
	}
	return nil
}
