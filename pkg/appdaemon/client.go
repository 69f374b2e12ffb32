// Package appdaemon provides a thin client for the AppDaemon automation engine.
// AppDaemon exposes very little over HTTP; the client currently only verifies
// reachability, mirroring how the harness interacts with it today.
package appdaemon

import (
	"fmt"
	"net/http"
	"time"

	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Client struct {
	logger *zap.Logger

	baseUrl    string
	httpClient *http.Client
}

func NewClient(baseUrl string, atom *zap.AtomicLevel) *Client {
	client := &Client{
		baseUrl:    baseUrl,
		httpClient: &http.Client{Timeout: time.Second * 10},
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), atom)
	client.logger = zap.New(core, zap.Development())

	client.logger.Debug("AppDaemon client initialized.", zap.String("base_url", baseUrl))
	return client
}

func (c *Client) BaseUrl() string {
	return c.baseUrl
}

// Ping verifies that AppDaemon is reachable. Any HTTP response counts: the
// process answering at all is what matters here.
func (c *Client) Ping() error {
	response, err := c.httpClient.Get(c.baseUrl)
	if err != nil {
		return fmt.Errorf("appdaemon is not reachable at \"%s\": %w", c.baseUrl, err)
	}

	_ = response.Body.Close()
	return nil
}
