package dispatchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

// SessionObserver is told when the backend refuses the session token.
// Session handling itself belongs to the auth collaborator.
type SessionObserver interface {
	SessionRejected(ctx context.Context, actor entities.ActorContext, statusCode int)
}

// HTTPClient talks to the dispatch REST backend
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	observer   SessionObserver
}

var (
	_ repositories.DispatchRepository = (*HTTPClient)(nil)
	_ repositories.HospitalRepository = (*HTTPClient)(nil)
)

// NewClient creates a client with a bounded per-call timeout
func NewClient(baseURL string, timeout time.Duration, observer SessionObserver) *HTTPClient {
	return NewClientWithOptions(baseURL, &http.Client{Timeout: timeout}, observer)
}

// NewClientWithOptions creates a client around a caller supplied http.Client (useful for testing)
func NewClientWithOptions(baseURL string, httpClient *http.Client, observer SessionObserver) *HTTPClient {
	timeout := httpClient.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		timeout:    timeout,
		observer:   observer,
	}
}

// ListRequests fetches every dispatch request visible to the session
func (c *HTTPClient) ListRequests(ctx context.Context) ([]entities.DispatchRequest, error) {
	var rows []dispatchRequestDTO
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/dispatch-requests", nil, &rows); err != nil {
		return nil, asFetchError("list dispatch requests", err)
	}

	out := make([]entities.DispatchRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// MarkRead acknowledges a request as read
func (c *HTTPClient) MarkRead(ctx context.Context, requestID int64) error {
	endpoint := fmt.Sprintf("%s/dispatch-requests/%d/mark-read", c.baseURL, requestID)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, nil, nil); err != nil {
		return asRejection(err)
	}
	return nil
}

// Forward asks the backend to forward a request to a hospital
func (c *HTTPClient) Forward(ctx context.Context, requestID, hospitalID int64) error {
	body, err := json.Marshal(forwardBody{HospitalID: hospitalID})
	if err != nil {
		return apperrors.NewInternalError("encode forward body", err)
	}
	endpoint := fmt.Sprintf("%s/dispatch-requests/%d/forward", c.baseURL, requestID)
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return asRejection(err)
	}
	return nil
}

// ListHospitals lists hospitals in state, or all hospitals when state is empty
func (c *HTTPClient) ListHospitals(ctx context.Context, state string) ([]entities.Hospital, error) {
	parsed, err := url.Parse(c.baseURL + "/hospitals")
	if err != nil {
		return nil, apperrors.NewInternalError("build hospitals url", err)
	}
	if state != "" {
		query := parsed.Query()
		query.Set("state", state)
		parsed.RawQuery = query.Encode()
	}

	var rows []hospitalDTO
	if err := c.doJSON(ctx, http.MethodGet, parsed.String(), nil, &rows); err != nil {
		return nil, asFetchError("list hospitals", err)
	}

	out := make([]entities.Hospital, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}

// statusError is a non-2xx answer from the backend
type statusError struct {
	StatusCode int
	Reason     string
}

func (e *statusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("dispatch api returned status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("dispatch api returned status %d", e.StatusCode)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, endpoint string, body []byte, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	actor, _ := entities.ActorFromContext(ctx)
	if actor.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+actor.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		if c.observer != nil {
			c.observer.SessionRejected(ctx, actor, resp.StatusCode)
		}
		log.Warn().
			Int("status", resp.StatusCode).
			Str("subject", actor.Subject).
			Str("endpoint", endpoint).
			Msg("dispatch api refused session token")
		return apperrors.NewUnauthorizedError(fmt.Sprintf("dispatch api returned status %d", resp.StatusCode))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{StatusCode: resp.StatusCode, Reason: reasonFrom(payload)}
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	return decodeEnvelope(payload, out)
}

// decodeEnvelope accepts either a bare JSON value or {"data": value}
func decodeEnvelope(payload []byte, out interface{}) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 {
			trimmed = envelope.Data
		}
	}
	if err := json.Unmarshal(trimmed, out); err != nil {
		return fmt.Errorf("decode dispatch api response: %w", err)
	}
	return nil
}

func reasonFrom(payload []byte) string {
	var body struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return strings.TrimSpace(string(payload))
	}
	switch {
	case body.Reason != "":
		return body.Reason
	case body.Message != "":
		return body.Message
	default:
		return body.Error
	}
}

func asFetchError(op string, err error) error {
	if apperrors.IsType(err, apperrors.ErrorTypeUnauthorized) {
		return err
	}
	return apperrors.NewFetchError(op, err)
}

func asRejection(err error) error {
	if apperrors.IsType(err, apperrors.ErrorTypeUnauthorized) {
		return err
	}
	var se *statusError
	if errors.As(err, &se) {
		reason := se.Reason
		if reason == "" {
			reason = "backend returned status " + strconv.Itoa(se.StatusCode)
		}
		return apperrors.NewTransitionRejectedError(reason, err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewTransitionRejectedError("timeout", err)
	}
	return apperrors.NewTransitionRejectedError("transport failure", err)
}
