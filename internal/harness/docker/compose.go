package docker

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ha-testbed/harness/internal/domain"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	ErrStartupTimedOut   = errors.New("containers did not become healthy before the startup timeout")
	ErrUnknownService    = errors.New("unknown compose service")
	ErrNoPublishedPort   = errors.New("service has no published port")
	ErrComposeInvocation = errors.New("docker compose invocation failed")
)

// ComposeManager owns the lifecycle of the two service containers (Home Assistant
// and AppDaemon): startup, health checking, port discovery, file access, diagnostics
// capture, and teardown. It shells out to the docker CLI, which is also how the
// containers are managed outside the harness.
type ComposeManager struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger

	cfg *domain.Configuration
}

func NewComposeManager(cfg *domain.Configuration, atom *zap.AtomicLevel) *ComposeManager {
	manager := &ComposeManager{
		cfg: cfg,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), atom)
	manager.logger = zap.New(core, zap.Development())
	manager.sugaredLogger = manager.logger.Sugar()

	return manager
}

// Start stages any persistent entities, brings the compose project up, and waits
// for every service to report healthy.
func (m *ComposeManager) Start() error {
	if m.cfg.PersistentEntities != "" {
		entities, err := LoadPersistentEntities(m.cfg.PersistentEntities)
		if err != nil {
			return err
		}

		if err = StagePersistentEntities(entities, m.cfg.SharedDataDir); err != nil {
			return err
		}

		m.sugaredLogger.Debugf("Staged %d persistent entities from \"%s\".", len(entities), m.cfg.PersistentEntities)
	}

	m.logger.Info("Starting service containers.",
		zap.String("compose_file", m.cfg.ComposeFile), zap.String("project", m.cfg.ComposeProjectName))

	if _, err := m.compose(nil, "up", "-d"); err != nil {
		return err
	}

	return m.awaitHealthy(time.Duration(m.cfg.StartupTimeoutSec) * time.Second)
}

// Stop tears the compose project down, discarding container state.
func (m *ComposeManager) Stop() error {
	m.logger.Info("Tearing down service containers.", zap.String("project", m.cfg.ComposeProjectName))

	_, err := m.compose(nil, "down", "--volumes", "--remove-orphans")
	return err
}

// ContainersHealthy reports whether every service container is currently healthy
// (or running, for services without a healthcheck).
func (m *ComposeManager) ContainersHealthy() bool {
	containers, err := m.listContainers()
	if err != nil || len(containers) == 0 {
		return false
	}

	for _, container := range containers {
		if container.Health != "" && container.Health != "healthy" {
			return false
		}
		if container.Health == "" && container.State != "running" {
			return false
		}
	}

	return true
}

// Diagnostics captures container status and recent logs, for attachment to test
// failure reports.
func (m *ComposeManager) Diagnostics() string {
	var builder strings.Builder

	builder.WriteString("=== docker compose ps ===\n")
	if out, err := m.compose(nil, "ps", "--all"); err == nil {
		builder.WriteString(out)
	} else {
		builder.WriteString(fmt.Sprintf("<failed: %v>\n", err))
	}

	builder.WriteString("\n=== docker compose logs (last 100 lines per service) ===\n")
	if out, err := m.compose(nil, "logs", "--tail", "100"); err == nil {
		builder.WriteString(out)
	} else {
		builder.WriteString(fmt.Sprintf("<failed: %v>\n", err))
	}

	return builder.String()
}

// HomeAssistantUrl returns the host-reachable base URL of the Home Assistant API.
func (m *ComposeManager) HomeAssistantUrl() (string, error) {
	return m.serviceUrl(m.cfg.HomeAssistantService, m.cfg.HomeAssistantPort)
}

// AppDaemonUrl returns the host-reachable base URL of the AppDaemon API.
func (m *ComposeManager) AppDaemonUrl() (string, error) {
	return m.serviceUrl(m.cfg.AppDaemonService, m.cfg.AppDaemonPort)
}

// ReadContainerFile returns the contents of a file inside a service container.
func (m *ComposeManager) ReadContainerFile(service string, path string) (string, error) {
	out, err := m.compose(nil, "exec", "-T", service, "cat", path)
	if err != nil {
		return "", fmt.Errorf("failed to read \"%s\" from service \"%s\": %w", path, service, err)
	}

	return strings.TrimSpace(out), nil
}

// WriteContainerFile writes content to a file inside a service container.
func (m *ComposeManager) WriteContainerFile(service string, path string, content string) error {
	stdin := strings.NewReader(content)
	if _, err := m.compose(stdin, "exec", "-T", service, "sh", "-c", fmt.Sprintf("cat > %s", path)); err != nil {
		return fmt.Errorf("failed to write \"%s\" in service \"%s\": %w", path, service, err)
	}

	return nil
}

func (m *ComposeManager) serviceUrl(service string, containerPort int) (string, error) {
	out, err := m.compose(nil, "port", service, fmt.Sprintf("%d", containerPort))
	if err != nil {
		return "", err
	}

	hostPort := strings.TrimSpace(out)
	if hostPort == "" {
		return "", fmt.Errorf("%w: \"%s\" port %d", ErrNoPublishedPort, service, containerPort)
	}

	// docker compose prints e.g. "0.0.0.0:32768"; rewrite the wildcard for clients.
	hostPort = strings.Replace(hostPort, "0.0.0.0", "127.0.0.1", 1)
	return fmt.Sprintf("http://%s", hostPort), nil
}

func (m *ComposeManager) awaitHealthy(timeout time.Duration) error {
	startTime := time.Now()
	pollInterval := time.Second * 2

	for {
		if m.ContainersHealthy() {
			m.sugaredLogger.Debugf("All containers healthy after %v.", time.Since(startTime))
			return nil
		}

		if time.Since(startTime) >= timeout {
			m.logger.Warn("Containers failed to become healthy.", zap.Duration("timeout", timeout))
			return fmt.Errorf("%w (waited %v)", ErrStartupTimedOut, timeout)
		}

		time.Sleep(pollInterval)
	}
}

type containerStatus struct {
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
}

func (m *ComposeManager) listContainers() ([]containerStatus, error) {
	out, err := m.compose(nil, "ps", "--format", "json")
	if err != nil {
		return nil, err
	}

	// docker compose emits one JSON object per line.
	var containers []containerStatus
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}

		var container containerStatus
		if err = json.Unmarshal([]byte(line), &container); err != nil {
			return nil, fmt.Errorf("could not parse compose ps output line \"%s\": %w", line, err)
		}
		containers = append(containers, container)
	}

	return containers, nil
}

func (m *ComposeManager) compose(stdin *strings.Reader, args ...string) (string, error) {
	fullArgs := append([]string{"compose", "-p", m.cfg.ComposeProjectName, "-f", m.cfg.ComposeFile}, args...)

	command := exec.Command("docker", fullArgs...)
	if stdin != nil {
		command.Stdin = stdin
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("%w: docker %s: %s (stderr: %s)",
			ErrComposeInvocation, strings.Join(fullArgs, " "), err, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
