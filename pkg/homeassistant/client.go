package homeassistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ha-testbed/harness/internal/domain"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	sunEntityId          = "sun.sun"
	attributeNextRising  = "next_rising"
	attributeNextSetting = "next_setting"

	// testEntityPrefix marks entities created by the harness so they can be
	// removed again during cleanup.
	testEntityPrefix = "harness_test_"
)

// Client interacts with the Home Assistant REST API: entity state management,
// polling assertions, and the sun-state lookup used to resolve sunrise/sunset
// presets. Authentication failures caused by simulated-time advancement are handled
// transparently: a 401 response triggers one token regeneration and one retry.
type Client struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger

	baseUrl     string
	authManager *AuthManager
	httpClient  *http.Client
	metrics     domain.MetricsConsumer

	// Entity ids created via CreateTestEntity, removed again by CleanUpTestEntities.
	createdEntities []string
}

func NewClient(baseUrl string, refreshToken string, clientId string, atom *zap.AtomicLevel) *Client {
	client := &Client{
		baseUrl:    baseUrl,
		httpClient: &http.Client{Timeout: time.Second * 30},
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), atom)
	client.logger = zap.New(core, zap.Development())
	client.sugaredLogger = client.logger.Sugar()

	client.authManager = NewAuthManager(baseUrl, refreshToken, clientId, client.httpClient, client.logger)

	return client
}

// SetMetricsConsumer supplies an optional sink for API request metrics.
func (c *Client) SetMetricsConsumer(metrics domain.MetricsConsumer) {
	c.metrics = metrics
}

// BaseUrl returns the base URL of the Home Assistant instance.
func (c *Client) BaseUrl() string {
	return c.baseUrl
}

// RegenerateAccessToken obtains a fresh access token. This is registered as a
// post-mutation hook on the time machine: once simulated time jumps forward, the
// application considers the previously issued token expired.
func (c *Client) RegenerateAccessToken() error {
	_, err := c.authManager.RegenerateAccessToken()
	return err
}

// GetState returns the state of an entity, or nil if the entity does not exist.
func (c *Client) GetState(entityId string) (*EntityState, error) {
	var state EntityState
	statusCode, err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/states/%s", entityId), nil, &state)
	if err != nil {
		return nil, err
	}

	// 404 is acceptable: the entity simply doesn't exist.
	if statusCode == http.StatusNotFound {
		return nil, nil
	}

	return &state, nil
}

// SetState sets the state and (optionally) attributes of an entity, creating the
// entity if it does not exist yet.
func (c *Client) SetState(entityId string, state string, attributes map[string]interface{}) error {
	body := map[string]interface{}{"state": state}
	if attributes != nil {
		body["attributes"] = attributes
	}

	_, err := c.doRequest(http.MethodPost, fmt.Sprintf("/api/states/%s", entityId), body, nil)
	return err
}

// RemoveEntity deletes an entity. Removing an entity that does not exist is not an
// error, since absence is the desired outcome.
func (c *Client) RemoveEntity(entityId string) error {
	_, err := c.doRequest(http.MethodDelete, fmt.Sprintf("/api/states/%s", entityId), nil, nil)
	return err
}

// CreateTestEntity creates an entity with a unique, harness-owned id in the given
// domain (e.g., "light", "sensor") and records it for later cleanup.
func (c *Client) CreateTestEntity(entityDomain string, state string, attributes map[string]interface{}) (string, error) {
	entityId := fmt.Sprintf("%s.%s%s", entityDomain, testEntityPrefix, uuid.NewString()[0:8])
	if err := c.SetState(entityId, state, attributes); err != nil {
		return "", err
	}

	c.createdEntities = append(c.createdEntities, entityId)
	return entityId, nil
}

// CleanUpTestEntities removes every entity created via CreateTestEntity.
func (c *Client) CleanUpTestEntities() error {
	for _, entityId := range c.createdEntities {
		if err := c.RemoveEntity(entityId); err != nil {
			return err
		}
	}

	c.createdEntities = nil
	return nil
}

// AwaitEntityState polls an entity until its state satisfies the matcher or the
// timeout elapses.
func (c *Client) AwaitEntityState(entityId string, matcher StateMatcher, timeout time.Duration) error {
	startTime := time.Now()
	backoff := &ExponentialBackoff{
		BaseDuration: time.Millisecond * 250,
		Multiplier:   1.5,
		Jitter:       0.1,
		MaxDuration:  time.Second * 2,
	}

	var lastState string
	for {
		state, err := c.GetState(entityId)
		if err != nil {
			return err
		}

		if state == nil {
			return fmt.Errorf("%w: \"%s\"", ErrEntityNotFound, entityId)
		}

		if matcher(state.State) {
			if c.metrics != nil {
				c.metrics.ObserveEntityStateWaitMillis(time.Since(startTime).Milliseconds())
			}

			c.sugaredLogger.Debugf("Entity \"%s\" reached expected state after %v.", entityId, time.Since(startTime))
			return nil
		}

		lastState = state.State
		if time.Since(startTime) >= timeout {
			return fmt.Errorf("entity \"%s\" did not reach the expected state within %v; current state: \"%s\"", entityId, timeout, lastState)
		}

		time.Sleep(backoff.Delay())
	}
}

// NextSunEvent returns the raw next-occurrence timestamp of the given sun event as
// reported by the application's sun.sun entity. This makes the Client usable as the
// time machine's preset oracle.
func (c *Client) NextSunEvent(preset domain.Preset) (string, error) {
	state, err := c.GetState(sunEntityId)
	if err != nil {
		return "", err
	}

	if state == nil {
		return "", ErrSunStateUnavailable
	}

	attribute := attributeNextRising
	if preset == domain.PresetSunset {
		attribute = attributeNextSetting
	}

	value, ok := state.StringAttribute(attribute)
	if !ok {
		return "", fmt.Errorf("could not find \"%s\" time in %s entity attributes", preset, sunEntityId)
	}

	return value, nil
}

// doRequest performs one authenticated request against the REST API, decoding the
// JSON response into 'out' when provided. On a 401 response the access token is
// regenerated once and the request retried once.
func (c *Client) doRequest(method string, path string, body interface{}, out interface{}) (int, error) {
	statusCode, err := c.doRequestOnce(method, path, body, out)
	if err != nil {
		return statusCode, err
	}

	if statusCode == http.StatusUnauthorized {
		c.logger.Debug("Received HTTP 401; regenerating access token and retrying once.",
			zap.String("method", method), zap.String("path", path))

		if _, err = c.authManager.RegenerateAccessToken(); err != nil {
			return statusCode, err
		}

		statusCode, err = c.doRequestOnce(method, path, body, out)
		if err != nil {
			return statusCode, err
		}
	}

	if statusCode >= http.StatusBadRequest && statusCode != http.StatusNotFound {
		return statusCode, fmt.Errorf("%w: %s %s returned HTTP %d", ErrRequestFailed, method, path, statusCode)
	}

	return statusCode, nil
}

func (c *Client) doRequestOnce(method string, path string, body interface{}, out interface{}) (int, error) {
	token, err := c.authManager.GetAccessToken()
	if err != nil {
		return 0, err
	}

	var requestBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%w: could not encode request body: %s", ErrRequestFailed, err)
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequest(method, c.baseUrl+path, requestBody)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrRequestFailed, err)
	}
	request.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %s: %s", ErrRequestFailed, method, path, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	if c.metrics != nil {
		c.metrics.ObserveApiRequest(method, response.StatusCode)
	}

	if out != nil && response.StatusCode < http.StatusBadRequest {
		if err = json.NewDecoder(response.Body).Decode(out); err != nil {
			return response.StatusCode, fmt.Errorf("%w: could not decode response of %s %s: %s", ErrRequestFailed, method, path, err)
		}
	}

	return response.StatusCode, nil
}
