package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/riskibarqy/baduk-client/internal/platform/logging"
	"github.com/riskibarqy/baduk-client/internal/platform/resilience"
)

// Config stores runtime configuration for the client core.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	LogLevel       logging.Level
	LogFormat      string

	APIBaseURL               string
	APIRoot                  string
	APITimeout               time.Duration
	APICSRFCookie            string
	APICSRFHeader            string
	APICircuitEnabled        bool
	APICircuitFailureCount   int
	APICircuitOpenTimeout    time.Duration
	APICircuitHalfOpenMaxReq int

	PlayerBulkPath      string
	PlayerSearchPath    string
	PlayerChunkSize     int
	PlayerBatchWindow   time.Duration
	PlayerBatchMaxItems int
	PlayerFetchWorkers  int

	AutoplayDelay time.Duration
	MetricsAddr   string

	DBURL                   string
	DBDisablePreparedBinary bool
	SnapshotLoadLimit       int

	UptraceEnabled     bool
	UptraceDSN         string
	UptraceLogsEnabled bool

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

// CircuitBreaker returns the API breaker settings in the shape the transport expects.
func (c Config) CircuitBreaker() resilience.CircuitBreakerConfig {
	return resilience.CircuitBreakerConfig{
		Enabled:          c.APICircuitEnabled,
		FailureThreshold: c.APICircuitFailureCount,
		OpenTimeout:      c.APICircuitOpenTimeout,
		HalfOpenMaxReq:   c.APICircuitHalfOpenMaxReq,
	}
}

// SnapshotsEnabled reports whether a player snapshot database is configured.
func (c Config) SnapshotsEnabled() bool {
	return strings.TrimSpace(c.DBURL) != ""
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	logFormat := strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "json")))
	if logFormat != logging.FormatJSON && logFormat != logging.FormatConsole {
		return Config{}, fmt.Errorf("invalid LOG_FORMAT %q: valid values are %s, %s", logFormat, logging.FormatJSON, logging.FormatConsole)
	}

	apiBaseURL := strings.TrimSpace(getEnv("API_BASE_URL", "https://online-go.com"))
	if err := validateBaseURL(apiBaseURL); err != nil {
		return Config{}, fmt.Errorf("parse API_BASE_URL: %w", err)
	}
	apiTimeout, err := time.ParseDuration(getEnv("API_TIMEOUT", "20s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_TIMEOUT: %w", err)
	}
	if apiTimeout <= 0 {
		return Config{}, fmt.Errorf("API_TIMEOUT must be > 0")
	}

	apiCircuitEnabled, err := strconv.ParseBool(getEnv("API_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_ENABLED: %w", err)
	}
	apiCircuitFailureCount, err := getEnvAsInt("API_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if apiCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("API_CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	apiCircuitOpenTimeout, err := time.ParseDuration(getEnv("API_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if apiCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("API_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	apiCircuitHalfOpenMaxReq, err := getEnvAsInt("API_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse API_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if apiCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("API_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	playerChunkSize, err := getEnvAsInt("PLAYER_CHUNK_SIZE", 100)
	if err != nil {
		return Config{}, fmt.Errorf("parse PLAYER_CHUNK_SIZE: %w", err)
	}
	if playerChunkSize < 1 {
		return Config{}, fmt.Errorf("PLAYER_CHUNK_SIZE must be >= 1")
	}
	playerBatchWindow, err := time.ParseDuration(getEnv("PLAYER_BATCH_WINDOW", "10ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PLAYER_BATCH_WINDOW: %w", err)
	}
	if playerBatchWindow < 0 {
		return Config{}, fmt.Errorf("PLAYER_BATCH_WINDOW must be >= 0")
	}
	playerBatchMaxItems, err := getEnvAsInt("PLAYER_BATCH_MAX_ITEMS", 0)
	if err != nil {
		return Config{}, fmt.Errorf("parse PLAYER_BATCH_MAX_ITEMS: %w", err)
	}
	if playerBatchMaxItems < 0 {
		return Config{}, fmt.Errorf("PLAYER_BATCH_MAX_ITEMS must be >= 0")
	}
	playerFetchWorkers, err := getEnvAsInt("PLAYER_FETCH_WORKERS", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse PLAYER_FETCH_WORKERS: %w", err)
	}
	if playerFetchWorkers < 1 {
		return Config{}, fmt.Errorf("PLAYER_FETCH_WORKERS must be >= 1")
	}

	autoplayDelay, err := time.ParseDuration(getEnv("AUTOPLAY_DELAY", "1500ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse AUTOPLAY_DELAY: %w", err)
	}
	if autoplayDelay <= 0 {
		return Config{}, fmt.Errorf("AUTOPLAY_DELAY must be > 0")
	}

	dbDisablePreparedBinary, err := strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY: %w", err)
	}
	snapshotLoadLimit, err := getEnvAsInt("SNAPSHOT_LOAD_LIMIT", 5000)
	if err != nil {
		return Config{}, fmt.Errorf("parse SNAPSHOT_LOAD_LIMIT: %w", err)
	}
	if snapshotLoadLimit < 0 {
		return Config{}, fmt.Errorf("SNAPSHOT_LOAD_LIMIT must be >= 0")
	}

	uptraceEnabled, err := strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	uptraceDSN := strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if uptraceDSN == "" {
		uptraceDSN = parseUptraceDSNFromOTLPHeaders(getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""))
	}
	if uptraceEnabled && uptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	uptraceLogsEnabled, err := strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	pyroscopeEnabled, err := strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	pyroscopeServerAddress := strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if pyroscopeEnabled && pyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	if pyroscopeUploadRate <= 0 {
		return Config{}, fmt.Errorf("PYROSCOPE_UPLOAD_RATE must be > 0")
	}

	cfg := Config{
		AppEnv:                     appEnv,
		ServiceName:                getEnv("SERVICE_NAME", "baduk-client"),
		ServiceVersion:             getEnv("SERVICE_VERSION", "dev"),
		LogLevel:                   logging.ParseLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat:                  logFormat,
		APIBaseURL:                 apiBaseURL,
		APIRoot:                    strings.TrimSpace(getEnv("API_ROOT", "/api/v1/")),
		APITimeout:                 apiTimeout,
		APICSRFCookie:              strings.TrimSpace(getEnv("API_CSRF_COOKIE", "csrftoken")),
		APICSRFHeader:              strings.TrimSpace(getEnv("API_CSRF_HEADER", "X-CSRFToken")),
		APICircuitEnabled:          apiCircuitEnabled,
		APICircuitFailureCount:     apiCircuitFailureCount,
		APICircuitOpenTimeout:      apiCircuitOpenTimeout,
		APICircuitHalfOpenMaxReq:   apiCircuitHalfOpenMaxReq,
		PlayerBulkPath:             strings.TrimSpace(getEnv("PLAYER_BULK_PATH", "players/bulk")),
		PlayerSearchPath:           strings.TrimSpace(getEnv("PLAYER_SEARCH_PATH", "players")),
		PlayerChunkSize:            playerChunkSize,
		PlayerBatchWindow:          playerBatchWindow,
		PlayerBatchMaxItems:        playerBatchMaxItems,
		PlayerFetchWorkers:         playerFetchWorkers,
		AutoplayDelay:              autoplayDelay,
		MetricsAddr:                strings.TrimSpace(getEnv("METRICS_ADDR", "")),
		DBURL:                      strings.TrimSpace(getEnv("DB_URL", "")),
		DBDisablePreparedBinary:    dbDisablePreparedBinary,
		SnapshotLoadLimit:          snapshotLoadLimit,
		UptraceEnabled:             uptraceEnabled,
		UptraceDSN:                 uptraceDSN,
		UptraceLogsEnabled:         uptraceLogsEnabled,
		PyroscopeEnabled:           pyroscopeEnabled,
		PyroscopeServerAddress:     pyroscopeServerAddress,
		PyroscopeAuthToken:         strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", "")),
		PyroscopeBasicAuthUser:     strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", "")),
		PyroscopeBasicAuthPassword: strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")),
		PyroscopeUploadRate:        pyroscopeUploadRate,
	}
	cfg.PyroscopeAppName = strings.TrimSpace(getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName))
	if cfg.PyroscopeEnabled && cfg.PyroscopeAppName == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_APP_NAME cannot be empty when PYROSCOPE_ENABLED=true")
	}
	if cfg.APICSRFCookie == "" || cfg.APICSRFHeader == "" {
		return Config{}, fmt.Errorf("API_CSRF_COOKIE and API_CSRF_HEADER cannot be empty")
	}

	return cfg, nil
}

func validateBaseURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func parseUptraceDSNFromOTLPHeaders(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	items := strings.Split(raw, ",")
	for _, item := range items {
		parts := strings.SplitN(strings.TrimSpace(item), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(parts[0]), "uptrace-dsn") {
			value := strings.TrimSpace(parts[1])
			return strings.Trim(value, "\"'")
		}
	}

	return ""
}

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}
