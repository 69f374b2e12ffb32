package homeassistant

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// AuthManager handles the access-token lifecycle for Home Assistant API access:
// the initial token exchange via the long-lived refresh token, and regeneration
// when a token expires -- which happens routinely in this harness, since advancing
// simulated time makes the application consider previously issued tokens expired.
type AuthManager struct {
	logger *zap.Logger

	baseUrl      string
	clientId     string
	refreshToken string
	httpClient   *http.Client

	accessToken string
	mutex       sync.Mutex
}

func NewAuthManager(baseUrl string, refreshToken string, clientId string, httpClient *http.Client, logger *zap.Logger) *AuthManager {
	return &AuthManager{
		logger:       logger,
		baseUrl:      baseUrl,
		clientId:     clientId,
		refreshToken: refreshToken,
		httpClient:   httpClient,
	}
}

// GetAccessToken returns the cached access token, generating one if needed.
func (m *AuthManager) GetAccessToken() (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.accessToken == "" {
		m.logger.Debug("No access token cached; generating initial token.")
		return m.regenerateLocked()
	}

	return m.accessToken, nil
}

// RegenerateAccessToken exchanges the refresh token for a fresh access token at the
// application's /auth/token endpoint and caches it.
func (m *AuthManager) RegenerateAccessToken() (string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.regenerateLocked()
}

func (m *AuthManager) regenerateLocked() (string, error) {
	endpoint := fmt.Sprintf("%s/auth/token", m.baseUrl)

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", m.refreshToken)
	form.Set("client_id", m.clientId)

	request, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTokenExchangeFailed, err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := m.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTokenExchangeFailed, err)
	}
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrTokenExchangeFailed, err)
	}

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: received HTTP %d from \"%s\": %s", ErrTokenExchangeFailed, response.StatusCode, endpoint, string(body))
	}

	var tokenData struct {
		AccessToken string `json:"access_token"`
	}
	if err = json.Unmarshal(body, &tokenData); err != nil {
		return "", fmt.Errorf("%w: could not decode response from \"%s\": %s", ErrTokenExchangeFailed, endpoint, err)
	}

	if tokenData.AccessToken == "" {
		return "", fmt.Errorf("%w: no access_token in response from \"%s\"", ErrTokenExchangeFailed, endpoint)
	}

	m.accessToken = tokenData.AccessToken
	m.logger.Debug("Successfully regenerated access token.")

	return m.accessToken, nil
}
