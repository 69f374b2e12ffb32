// Package harness wires the integration test harness together: it starts the
// service containers, builds the API clients, and hands test code a time machine
// whose mutations are observed by the time-interception agents inside the
// containers.
package harness

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ha-testbed/harness/internal/domain"
	"github.com/ha-testbed/harness/internal/harness/clock"
	"github.com/ha-testbed/harness/internal/harness/docker"
	"github.com/ha-testbed/harness/internal/harness/metrics"
	"github.com/ha-testbed/harness/pkg/appdaemon"
	"github.com/ha-testbed/harness/pkg/homeassistant"
	"github.com/mattn/go-colorable"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Session is the root object of one harness run. It is session-scoped: the
// containers, the clients, and -- importantly -- the simulated clock persist across
// all tests in the session. Simulated time can only move forward and is never
// reset; tests that depend on specific time conditions must advance time to the
// desired state themselves.
type Session struct {
	logger        *zap.Logger
	sugaredLogger *zap.SugaredLogger

	Id            string
	Docker        *docker.ComposeManager
	HomeAssistant *homeassistant.Client
	AppDaemon     *appdaemon.Client
	TimeMachine   *clock.TimeMachine
	Metrics       *metrics.HarnessMetrics

	cfg  *domain.Configuration
	atom zap.AtomicLevel
}

// NewSession starts the containers and assembles the harness. On any failure during
// startup the containers are torn down again before the error is returned.
func NewSession(cfg *domain.Configuration) (*Session, error) {
	atom := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Debug || cfg.Verbose {
		atom.SetLevel(zapcore.DebugLevel)
	}

	session := &Session{
		Id:   uuid.NewString(),
		cfg:  cfg,
		atom: atom,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(colorable.NewColorableStdout()), &atom)
	session.logger = zap.New(core, zap.Development())
	session.sugaredLogger = session.logger.Sugar()

	session.Metrics = metrics.NewHarnessMetrics(&session.atom)
	session.Docker = docker.NewComposeManager(cfg, &session.atom)

	if err := session.Docker.Start(); err != nil {
		session.logger.Error("Container startup failed.", zap.Error(err))
		session.sugaredLogger.Warnf("Container diagnostics:\n%s", session.Docker.Diagnostics())
		_ = session.Docker.Stop()
		return nil, err
	}

	if err := session.assemble(); err != nil {
		_ = session.Docker.Stop()
		return nil, err
	}

	session.logger.Info("Harness session ready.",
		zap.String("session_id", session.Id),
		zap.String("home_assistant", session.HomeAssistant.BaseUrl()),
		zap.String("appdaemon", session.AppDaemon.BaseUrl()),
		zap.String("clock_store", filepath.Join(cfg.SharedDataDir, cfg.ClockFileName)))

	return session, nil
}

func (s *Session) assemble() error {
	haUrl, err := s.Docker.HomeAssistantUrl()
	if err != nil {
		return err
	}

	adUrl, err := s.Docker.AppDaemonUrl()
	if err != nil {
		return err
	}

	refreshToken := s.cfg.RefreshToken
	if refreshToken == "" {
		refreshToken, err = s.Docker.ReadContainerFile(s.cfg.HomeAssistantService, s.cfg.TokenFilePath)
		if err != nil {
			return fmt.Errorf("could not obtain a refresh token: %w", err)
		}
	}

	s.HomeAssistant = homeassistant.NewClient(haUrl, refreshToken, s.cfg.AuthClientId, &s.atom)
	s.HomeAssistant.SetMetricsConsumer(s.Metrics)
	s.AppDaemon = appdaemon.NewClient(adUrl, &s.atom)

	location, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		return fmt.Errorf("%w: unknown timezone \"%s\": %s", domain.ErrInvalidArgument, s.cfg.Timezone, err)
	}

	store := clock.NewStore(filepath.Join(s.cfg.SharedDataDir, s.cfg.ClockFileName), location, &s.atom)

	// Session start: simulated time equals real time until the first mutation.
	if err = store.Reset(); err != nil {
		return err
	}

	s.TimeMachine = clock.NewTimeMachine(store, location, &s.atom)
	s.TimeMachine.SetSunStateProvider(s.HomeAssistant)
	s.TimeMachine.SetMetricsObserver(s.Metrics)

	// Once simulated time jumps forward, the application considers previously
	// issued access tokens expired; refresh after every committed mutation.
	s.TimeMachine.RegisterOnTimeAdvanced("regenerate-access-token", func(newTime time.Time) error {
		return s.HomeAssistant.RegenerateAccessToken()
	})

	return nil
}

// AwaitDefaultTimeout returns the configured default timeout for entity-state
// assertions.
func (s *Session) AwaitDefaultTimeout() time.Duration {
	return time.Duration(s.cfg.EntityWaitSec) * time.Second
}

// Close tears down the containers. The clock record is discarded with the session;
// there is no way to wind simulated time back for a subsequent run.
func (s *Session) Close() error {
	s.logger.Info("Closing harness session.", zap.String("session_id", s.Id))

	if err := s.HomeAssistant.CleanUpTestEntities(); err != nil {
		s.logger.Warn("Failed to clean up test entities during teardown.", zap.Error(err))
	}

	return s.Docker.Stop()
}
