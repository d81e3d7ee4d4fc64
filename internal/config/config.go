// Package config provides hierarchical configuration loading for Hivemind.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the Hivemind engine.
type Config struct {
	Server    Server    `yaml:"server"`
	Postgres  Postgres  `yaml:"postgres"`
	NATS      NATS      `yaml:"nats"`
	Logging   Logging   `yaml:"logging"`
	Router    Router    `yaml:"router"`
	Consensus Consensus `yaml:"consensus"`
	Breaker   Breaker   `yaml:"breaker"`
	Weights   Weights   `yaml:"weights"`
	Cache     Cache     `yaml:"cache"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds PostgreSQL connection configuration. An empty DSN selects
// the in-memory store.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	HealthCheck     time.Duration `yaml:"health_check"`
}

// NATS holds NATS JetStream configuration. An empty URL disables the queue
// and the NATS dispatch gateway.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Router holds capability routing configuration.
type Router struct {
	DirectAssignThreshold float64 `yaml:"direct_assign_threshold"` // Min score for direct assignment (default: 0.75)
	MinScoreFloor         float64 `yaml:"min_score_floor"`         // Below this no participant is capable (default: 0.1)
}

// Consensus holds consensus coordinator configuration.
type Consensus struct {
	Threshold         float64       `yaml:"threshold"`           // Min weighted agreement score (default: 0.67)
	MinQuorumFraction float64       `yaml:"min_quorum_fraction"` // Fraction of registered deciders (default: 0.51)
	DispatchTimeout   time.Duration `yaml:"dispatch_timeout"`    // Per-participant timeout (default: 30s)
	DecideTimeout     time.Duration `yaml:"decide_timeout"`      // Overall Decide timeout incl. retry round (default: 60s)
}

// Breaker holds per-participant circuit breaker configuration.
type Breaker struct {
	FailureThreshold int           `yaml:"failure_threshold"` // Consecutive failures before opening (default: 3)
	OpenDuration     time.Duration `yaml:"open_duration"`     // Initial open duration (default: 30s)
	MaxOpenDuration  time.Duration `yaml:"max_open_duration"` // Backoff cap (default: 5m)
}

// Weights holds participant reputation weight configuration.
type Weights struct {
	Max          float64 `yaml:"max"`           // Upper weight bound (default: 2.0)
	RecoveryStep float64 `yaml:"recovery_step"` // Added on success (default: 0.1)
	DecayStep    float64 `yaml:"decay_step"`    // Subtracted on minority vote (default: 0.05)
}

// Cache holds tiered cache configuration.
type Cache struct {
	L1MaxSizeMB int64         `yaml:"l1_max_size_mb"`
	L1TTL       time.Duration `yaml:"l1_ttl"`
	L2Bucket    string        `yaml:"l2_bucket"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        15,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
			HealthCheck:     time.Minute,
		},
		NATS: NATS{
			URL: "nats://localhost:4222",
		},
		Logging: Logging{
			Level:   "info",
			Service: "hivemind",
		},
		Router: Router{
			DirectAssignThreshold: 0.75,
			MinScoreFloor:         0.1,
		},
		Consensus: Consensus{
			Threshold:         0.67,
			MinQuorumFraction: 0.51,
			DispatchTimeout:   30 * time.Second,
			DecideTimeout:     60 * time.Second,
		},
		Breaker: Breaker{
			FailureThreshold: 3,
			OpenDuration:     30 * time.Second,
			MaxOpenDuration:  5 * time.Minute,
		},
		Weights: Weights{
			Max:          2.0,
			RecoveryStep: 0.1,
			DecayStep:    0.05,
		},
		Cache: Cache{
			L1MaxSizeMB: 64,
			L1TTL:       time.Minute,
			L2Bucket:    "hivemind-cache",
		},
	}
}
