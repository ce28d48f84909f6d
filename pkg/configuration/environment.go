package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/geosync/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}

	if len(existingFiles) == 0 {
		return 0, nil
	}

	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"geosync"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

// MatcherOptions are the fuzzy matching thresholds. Defaults follow the
// calibration used for Nepali administrative names; they are configurable
// per deployment but identical across tenants.
type MatcherOptions struct {
	HighConfidence  float64 `env:"MATCH_HIGH_CONFIDENCE" envDefault:"0.92"`
	ReviewThreshold float64 `env:"MATCH_REVIEW_THRESHOLD" envDefault:"0.70"`
	MaxResults      int     `env:"MATCH_MAX_RESULTS" envDefault:"10"`
	AliasTablePath  string  `env:"MATCH_ALIAS_TABLE" envDefault:"config/aliases.toml"`
}

func (m *MatcherOptions) Validate() error {
	if m.HighConfidence <= m.ReviewThreshold {
		return fmt.Errorf("MATCH_HIGH_CONFIDENCE (%v) must exceed MATCH_REVIEW_THRESHOLD (%v)", m.HighConfidence, m.ReviewThreshold)
	}
	if m.HighConfidence > 1 || m.ReviewThreshold < 0 {
		return fmt.Errorf("matcher thresholds must lie in [0,1]")
	}
	if m.MaxResults <= 0 {
		return fmt.Errorf("MATCH_MAX_RESULTS must be positive, got %d", m.MaxResults)
	}
	return nil
}

type SyncOptions struct {
	Workers      int           `env:"SYNC_WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"SYNC_POLL_INTERVAL" envDefault:"1m"`
	MaxAttempts  int           `env:"SYNC_MAX_ATTEMPTS" envDefault:"5"`
	MaxBackoff   time.Duration `env:"SYNC_MAX_BACKOFF" envDefault:"5m"`
}

func (s *SyncOptions) Validate() error {
	if s.Workers <= 0 {
		return fmt.Errorf("SYNC_WORKERS must be positive, got %d", s.Workers)
	}
	if s.MaxAttempts <= 0 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive, got %d", s.MaxAttempts)
	}
	return nil
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type Configuration struct {
	Database   DatabaseOptions
	Matcher    MatcherOptions
	Sync       SyncOptions
	Prometheus PrometheusOptions

	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	RequestIDHeader  string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-Id"`
	RealIPHeader     string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}

	if err := c.Matcher.Validate(); err != nil {
		return fmt.Errorf("matcher configuration error: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync configuration error: %w", err)
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		// Read-only environments (containers, CI) fall back to stderr.
		logger = logging.ConsoleLogger(c.LogrusLogLevel())
	} else {
		c.logFile = f
	}
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}

	return nil
}

func (c *Configuration) Unload() {
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
}
