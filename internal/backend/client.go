// Package backend implements booking.Backend over the shop platform's REST
// API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

const defaultTimeout = 15 * time.Second

var tracer = otel.Tracer("velo.internal.backend")

// APIError is a non-2xx response that has no more specific meaning.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API returned %d: %s", e.Status, e.Body)
}

// Options configure a Client.
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client is the REST implementation of booking.Backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *logging.Logger
}

var _ booking.Backend = (*Client)(nil)

// NewClient constructs a backend client.
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Client{
		httpClient: opts.HTTPClient,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      strings.TrimSpace(opts.Token),
		logger:     opts.Logger,
	}
}

// ResolveStoreBySlug implements booking.StoreResolver.
func (c *Client) ResolveStoreBySlug(ctx context.Context, slug string) (*booking.Store, error) {
	ctx, span := tracer.Start(ctx, "backend.resolve_store_by_slug")
	defer span.End()
	span.SetAttributes(attribute.String("velo.store_slug", slug))

	var store booking.Store
	path := fmt.Sprintf("/api/stores/by-slug/%s", url.PathEscape(slug))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &store); err != nil {
		return nil, c.storeErr(span, err, "resolve store by slug")
	}
	return &store, nil
}

// ResolveStoreByID implements booking.StoreResolver.
func (c *Client) ResolveStoreByID(ctx context.Context, id string) (*booking.Store, error) {
	ctx, span := tracer.Start(ctx, "backend.resolve_store_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("velo.store_id", id))

	var store booking.Store
	path := fmt.Sprintf("/api/stores/%s", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &store); err != nil {
		return nil, c.storeErr(span, err, "resolve store by id")
	}
	return &store, nil
}

func (c *Client) storeErr(span trace.Span, err error, action string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return booking.ErrStoreNotFound
	}
	recordError(span, err)
	return fmt.Errorf("%s: %w", action, err)
}

// ListStoreServices implements booking.Catalog.
func (c *Client) ListStoreServices(ctx context.Context, storeID string) ([]booking.Service, error) {
	ctx, span := tracer.Start(ctx, "backend.list_store_services")
	defer span.End()
	span.SetAttributes(attribute.String("velo.store_id", storeID))

	var wrapped struct {
		Services []booking.Service `json:"services"`
		Data     []booking.Service `json:"data"`
	}
	path := fmt.Sprintf("/api/stores/%s/services", url.PathEscape(storeID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapped); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("list store services: %w", err)
	}
	if len(wrapped.Services) > 0 {
		return wrapped.Services, nil
	}
	return wrapped.Data, nil
}

// GetAvailability implements booking.AvailabilitySource.
func (c *Client) GetAvailability(ctx context.Context, storeID, serviceID string, date booking.Date) ([]booking.TimeSlot, error) {
	ctx, span := tracer.Start(ctx, "backend.get_availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("velo.store_id", storeID),
		attribute.String("velo.service_id", serviceID),
		attribute.String("velo.date", date.String()),
	)

	q := url.Values{}
	q.Set("service_id", serviceID)
	q.Set("date", date.String())
	path := fmt.Sprintf("/api/stores/%s/availability?%s", url.PathEscape(storeID), q.Encode())

	var wrapped struct {
		Slots []booking.TimeSlot `json:"slots"`
		Data  []booking.TimeSlot `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapped); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("get availability: %w", err)
	}
	span.SetAttributes(attribute.Int("velo.slot_count", len(wrapped.Slots)+len(wrapped.Data)))
	if len(wrapped.Slots) > 0 {
		return wrapped.Slots, nil
	}
	return wrapped.Data, nil
}

// CreateBooking implements booking.Booker. 409 maps to
// booking.ErrBookingConflict, 400 and 422 to *booking.ValidationError.
func (c *Client) CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (*booking.Confirmation, error) {
	ctx, span := tracer.Start(ctx, "backend.create_booking")
	defer span.End()
	span.SetAttributes(
		attribute.String("velo.store_id", req.StoreID),
		attribute.String("velo.service_id", req.ServiceID),
		attribute.String("velo.technician_id", req.TechnicianID),
	)

	var resp booking.Confirmation
	err := c.doJSON(ctx, http.MethodPost, "/api/bookings", req, &resp)
	if err == nil {
		span.SetAttributes(attribute.String("velo.booking_id", resp.BookingID))
		return &resp, nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusConflict:
			span.SetAttributes(attribute.Bool("velo.conflict", true))
			return nil, booking.ErrBookingConflict
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return nil, &booking.ValidationError{Message: errorMessage(apiErr.Body)}
		}
	}
	recordError(span, err)
	return nil, fmt.Errorf("create booking: %w", err)
}

// SearchCustomers implements booking.CustomerDirectory.
func (c *Client) SearchCustomers(ctx context.Context, storeID, query string) ([]booking.Customer, error) {
	ctx, span := tracer.Start(ctx, "backend.search_customers")
	defer span.End()
	span.SetAttributes(attribute.String("velo.store_id", storeID))

	q := url.Values{}
	q.Set("q", query)
	path := fmt.Sprintf("/api/stores/%s/customers?%s", url.PathEscape(storeID), q.Encode())

	var wrapped struct {
		Customers []booking.Customer `json:"customers"`
		Data      []booking.Customer `json:"data"`
	}
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &wrapped); err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("search customers: %w", err)
	}
	if len(wrapped.Customers) > 0 {
		return wrapped.Customers, nil
	}
	return wrapped.Data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	endpoint := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		if resp.StatusCode != http.StatusNotFound {
			c.logger.Warn("backend API non-2xx response", "status", resp.StatusCode, "method", method, "path", path, "body", msg)
		}
		return &APIError{Status: resp.StatusCode, Body: msg}
	}

	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage extracts a user-facing message from an error body of the
// form {"error": "..."} or {"message": "..."}, falling back to the raw body.
func errorMessage(body string) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(body)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
