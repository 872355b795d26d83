// Package client is the user backend's client for the gateway's /internal API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	mqtmodels "gitlab.com/maplesense1/mpt.plant_gateway/src/production/MQT.Models"
)

// ErrCircuitOpen is returned without calling the gateway while the breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after maxFailures consecutive transport or 5xx
// failures and lets one probe through once resetTimeout has passed
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	state        CircuitBreakerState
	failureCount int
	lastFailTime time.Time
	mutex        sync.Mutex
}

// APIError is a non-2xx answer from the gateway
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Message)
}

// retryable reports whether the same request may succeed later
func (e *APIError) retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

// IsStatus reports whether err is an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// APIClient handles communication with the gateway
type APIClient struct {
	baseURL        string
	httpClient     *http.Client
	apiSecret      string
	circuitBreaker *CircuitBreaker
	maxRetries     int
	retryDelay     time.Duration
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, apiSecret string) *APIClient {
	return &APIClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		apiSecret: apiSecret,
		circuitBreaker: &CircuitBreaker{
			maxFailures:  5,
			resetTimeout: 30 * time.Second,
			state:        StateClosed,
		},
		maxRetries: 3,
		retryDelay: 1 * time.Second,
	}
}

// SetRetryPolicy changes how often and how fast idempotent calls are retried
func (c *APIClient) SetRetryPolicy(maxRetries int, retryDelay time.Duration) {
	c.maxRetries = maxRetries
	c.retryDelay = retryDelay
}

// SetCircuitBreaker changes the breaker thresholds
func (c *APIClient) SetCircuitBreaker(maxFailures int, resetTimeout time.Duration) {
	c.circuitBreaker.mutex.Lock()
	defer c.circuitBreaker.mutex.Unlock()
	c.circuitBreaker.maxFailures = maxFailures
	c.circuitBreaker.resetTimeout = resetTimeout
}

// ClaimResult is the gateway's answer to a claim. ConfigurationPending means
// the claim is stored but the credentials still have to reach the device.
type ClaimResult struct {
	Device               *mqtmodels.PlantDevice `json:"device"`
	ConfigurationPending bool                   `json:"configuration_pending"`
	Error                string                 `json:"error,omitempty"`
}

// ClaimRequest binds a discovered device to a user
type ClaimRequest struct {
	UserID      string `json:"user_id"`
	MacAddress  string `json:"mac_address"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ReadingPage is one page of a plant's reading history, newest first
type ReadingPage struct {
	Items    []mqtmodels.Reading `json:"items"`
	NextPage *int                `json:"next_page,omitempty"`
	Total    int                 `json:"total,omitempty"`
}

// AlertsToken opens /ws/alerts for one user
type AlertsToken struct {
	Token     string `json:"token"`
	TokenID   string `json:"token_id"`
	ExpiresAt int64  `json:"expires_at"`
}

type devicesResponse struct {
	Devices []mqtmodels.PlantDevice `json:"devices"`
}

type ownerResponse struct {
	IsOwner bool `json:"is_owner"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Circuit breaker methods
func (cb *CircuitBreaker) canExecute() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.state = StateHalfOpen
			return true
		}
		return false
	default:
		return false
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount = 0
	cb.state = StateClosed
}

func (cb *CircuitBreaker) onFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failureCount++
	cb.lastFailTime = time.Now()

	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// execute runs one call through the breaker. Only transport errors and 5xx
// answers count as failures, a 4xx says nothing about the gateway's health.
func (c *APIClient) execute(operation func() error) error {
	if !c.circuitBreaker.canExecute() {
		return ErrCircuitOpen
	}

	err := operation()
	var apiErr *APIError
	if err != nil && (!errors.As(err, &apiErr) || apiErr.retryable()) {
		c.circuitBreaker.onFailure()
	} else {
		c.circuitBreaker.onSuccess()
	}
	return err
}

// retryWithBackoff executes an idempotent call with exponential backoff
func (c *APIClient) retryWithBackoff(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		err := c.execute(operation)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			return err
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		lastErr = err

		// Don't retry on last attempt
		if attempt == c.maxRetries {
			break
		}

		delay := time.Duration(float64(c.retryDelay) * math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// AvailableDevices lists discovered devices nobody has claimed
func (c *APIClient) AvailableDevices(ctx context.Context) ([]mqtmodels.PlantDevice, error) {
	var out devicesResponse
	err := c.retryWithBackoff(ctx, func() error {
		return c.call(ctx, http.MethodGet, "/internal/devices/available", nil, &out, http.StatusOK)
	})
	return out.Devices, err
}

// Claim is not retried: a second attempt after a lost response would
// conflict with the first.
func (c *APIClient) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	var out ClaimResult
	err := c.execute(func() error {
		return c.call(ctx, http.MethodPost, "/internal/devices/claim", req, &out, http.StatusCreated, http.StatusAccepted)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateThresholds sends only the limits set in update
func (c *APIClient) UpdateThresholds(ctx context.Context, plantID string, update mqtmodels.Thresholds) (*mqtmodels.PlantDevice, error) {
	var out mqtmodels.PlantDevice
	err := c.retryWithBackoff(ctx, func() error {
		return c.call(ctx, http.MethodPatch, "/internal/devices/"+url.PathEscape(plantID)+"/thresholds", update, &out, http.StatusOK)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SendCommand is not retried, a duplicated irrigation is worse than a failed one
func (c *APIClient) SendCommand(ctx context.Context, plantID string, cmd mqtmodels.CommandPayload) error {
	return c.execute(func() error {
		return c.call(ctx, http.MethodPost, "/internal/devices/"+url.PathEscape(plantID)+"/commands", cmd, nil, http.StatusAccepted)
	})
}

// ResendConfiguration republishes the retained credentials of a claimed device
func (c *APIClient) ResendConfiguration(ctx context.Context, plantID string) error {
	return c.retryWithBackoff(ctx, func() error {
		return c.call(ctx, http.MethodPost, "/internal/devices/"+url.PathEscape(plantID)+"/provisioning/resend", nil, nil, http.StatusAccepted)
	})
}

// Readings pages a plant's history
func (c *APIClient) Readings(ctx context.Context, plantID string, page, pageSize int) (*ReadingPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	path := "/internal/devices/" + url.PathEscape(plantID) + "/readings?" + q.Encode()

	var out ReadingPage
	err := c.retryWithBackoff(ctx, func() error {
		return c.call(ctx, http.MethodGet, path, nil, &out, http.StatusOK)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DevicesByOwner lists the devices claimed by userID
func (c *APIClient) DevicesByOwner(ctx context.Context, userID string) ([]mqtmodels.PlantDevice, error) {
	var out devicesResponse
	err := c.retryWithBackoff(ctx, func() error {
		return c.call(ctx, http.MethodGet, "/internal/users/"+url.PathEscape(userID)+"/devices", nil, &out, http.StatusOK)
	})
	return out.Devices, err
}

// IsOwner reports whether userID owns plantID
func (c *APIClient) IsOwner(ctx context.Context, userID, plantID string) (bool, error) {
	var out ownerResponse
	path := "/internal/users/" + url.PathEscape(userID) + "/devices/" + url.PathEscape(plantID) + "/owner"
	err := c.retryWithBackoff(ctx, func() error {
		return c.call(ctx, http.MethodGet, path, nil, &out, http.StatusOK)
	})
	return out.IsOwner, err
}

// AlertsToken asks the gateway to sign a websocket token for userID
func (c *APIClient) AlertsToken(ctx context.Context, userID string) (*AlertsToken, error) {
	var out AlertsToken
	err := c.execute(func() error {
		return c.call(ctx, http.MethodPost, "/internal/users/"+url.PathEscape(userID)+"/alerts-token", nil, &out, http.StatusCreated)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs one request and decodes the body into out when the status is
// one of expected
func (c *APIClient) call(ctx context.Context, method, path string, body, out interface{}, expected ...int) error {
	resp, err := c.makeRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, status := range expected {
		if resp.StatusCode != status {
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e errorResponse
	msg := string(raw)
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

// makeRequest makes an HTTP request to the gateway
func (c *APIClient) makeRequest(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Add service-to-service authentication
	req.Header.Set("Authorization", "Bearer "+c.apiSecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "plant-gateway-client")

	return c.httpClient.Do(req)
}

// Health checks if the gateway process is up
func (c *APIClient) Health(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health/live", nil, nil, http.StatusOK)
}

// GetCircuitBreakerStatus returns the current circuit breaker status for monitoring
func (c *APIClient) GetCircuitBreakerStatus() map[string]interface{} {
	c.circuitBreaker.mutex.Lock()
	defer c.circuitBreaker.mutex.Unlock()

	return map[string]interface{}{
		"state":          c.circuitBreaker.state.String(),
		"failure_count":  c.circuitBreaker.failureCount,
		"last_fail_time": c.circuitBreaker.lastFailTime,
		"max_failures":   c.circuitBreaker.maxFailures,
		"reset_timeout":  c.circuitBreaker.resetTimeout,
	}
}
