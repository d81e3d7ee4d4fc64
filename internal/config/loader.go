package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "hivemind.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "HIVEMIND_PORT")
	setString(&cfg.Server.CORSOrigin, "HIVEMIND_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "HIVEMIND_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "HIVEMIND_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "HIVEMIND_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "HIVEMIND_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "HIVEMIND_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "HIVEMIND_LOG_LEVEL")
	setString(&cfg.Logging.Service, "HIVEMIND_LOG_SERVICE")
	setFloat64(&cfg.Router.DirectAssignThreshold, "HIVEMIND_ROUTER_DIRECT_THRESHOLD")
	setFloat64(&cfg.Router.MinScoreFloor, "HIVEMIND_ROUTER_MIN_FLOOR")
	setFloat64(&cfg.Consensus.Threshold, "HIVEMIND_CONSENSUS_THRESHOLD")
	setFloat64(&cfg.Consensus.MinQuorumFraction, "HIVEMIND_CONSENSUS_MIN_QUORUM")
	setDuration(&cfg.Consensus.DispatchTimeout, "HIVEMIND_DISPATCH_TIMEOUT")
	setDuration(&cfg.Consensus.DecideTimeout, "HIVEMIND_DECIDE_TIMEOUT")
	setInt(&cfg.Breaker.FailureThreshold, "HIVEMIND_BREAKER_FAILURES")
	setDuration(&cfg.Breaker.OpenDuration, "HIVEMIND_BREAKER_OPEN_DURATION")
	setDuration(&cfg.Breaker.MaxOpenDuration, "HIVEMIND_BREAKER_MAX_OPEN_DURATION")
	setFloat64(&cfg.Weights.Max, "HIVEMIND_WEIGHT_MAX")
	setFloat64(&cfg.Weights.RecoveryStep, "HIVEMIND_WEIGHT_RECOVERY_STEP")
	setFloat64(&cfg.Weights.DecayStep, "HIVEMIND_WEIGHT_DECAY_STEP")
	setInt64(&cfg.Cache.L1MaxSizeMB, "HIVEMIND_CACHE_L1_SIZE_MB")
	setDuration(&cfg.Cache.L1TTL, "HIVEMIND_CACHE_L1_TTL")
	setString(&cfg.Cache.L2Bucket, "HIVEMIND_CACHE_L2_BUCKET")
}

// validate checks that required fields are set and thresholds are sane.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Router.DirectAssignThreshold <= 0 || cfg.Router.DirectAssignThreshold > 1 {
		return errors.New("router.direct_assign_threshold must be in (0, 1]")
	}
	if cfg.Router.MinScoreFloor < 0 || cfg.Router.MinScoreFloor >= cfg.Router.DirectAssignThreshold {
		return errors.New("router.min_score_floor must be in [0, direct_assign_threshold)")
	}
	if cfg.Consensus.Threshold <= 0 || cfg.Consensus.Threshold > 1 {
		return errors.New("consensus.threshold must be in (0, 1]")
	}
	if cfg.Consensus.MinQuorumFraction <= 0 || cfg.Consensus.MinQuorumFraction > 1 {
		return errors.New("consensus.min_quorum_fraction must be in (0, 1]")
	}
	if cfg.Breaker.FailureThreshold < 1 {
		return errors.New("breaker.failure_threshold must be >= 1")
	}
	if cfg.Weights.Max <= 0 {
		return errors.New("weights.max must be > 0")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
