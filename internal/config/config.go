package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Events     EventsConfig     `yaml:"events"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Risk       RiskConfig       `yaml:"risk"`
	Quality    QualityConfig    `yaml:"quality"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	AdminToken  string `yaml:"admin_token"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type EventsConfig struct {
	URL string `yaml:"url"`
}

type SummarizerConfig struct {
	URL string `yaml:"url"`
}

type ScoringConfig struct {
	Weights     ScoringWeights `yaml:"weights"`
	HorizonDays int            `yaml:"horizon_days"`
}

type ScoringWeights struct {
	Urgency         float64 `yaml:"urgency"`
	Originator      float64 `yaml:"originator"`
	Keyword         float64 `yaml:"keyword"`
	Escalation      float64 `yaml:"escalation"`
	WorkloadPenalty float64 `yaml:"workload_penalty"`
	ExpediteBonus   float64 `yaml:"expedite_bonus"`
}

type RiskConfig struct {
	Weights        RiskWeights `yaml:"weights"`
	AmberThreshold float64     `yaml:"amber_threshold"`
	RedThreshold   float64     `yaml:"red_threshold"`
	DriverShare    float64     `yaml:"driver_share"`
}

type RiskWeights struct {
	Schedule     float64 `yaml:"schedule"`
	Dependencies float64 `yaml:"dependencies"`
	OwnerHistory float64 `yaml:"owner_history"`
	Approver     float64 `yaml:"approver"`
}

type QualityConfig struct {
	MinDescriptionLen int `yaml:"min_description_len"`
}

type SweepConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	Workers    int `yaml:"workers"`
	MaxRetries int `yaml:"max_retries"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sweep.IntervalMs) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        8700,
			MetricsPort: 8701,
		},
		Events: EventsConfig{
			URL: "nats://localhost:4222",
		},
		Summarizer: SummarizerConfig{
			URL: "http://localhost:8810",
		},
		Scoring: ScoringConfig{
			Weights: ScoringWeights{
				Urgency:         0.35,
				Originator:      0.25,
				Keyword:         0.15,
				Escalation:      0.10,
				WorkloadPenalty: 0.10,
				ExpediteBonus:   0.15,
			},
			HorizonDays: 30,
		},
		Risk: RiskConfig{
			Weights: RiskWeights{
				Schedule:     0.45,
				Dependencies: 0.20,
				OwnerHistory: 0.20,
				Approver:     0.15,
			},
			AmberThreshold: 0.25,
			RedThreshold:   0.6,
			DriverShare:    0.2,
		},
		Quality: QualityConfig{
			MinDescriptionLen: 30,
		},
		Sweep: SweepConfig{
			IntervalMs: 300000,
			Workers:    4,
			MaxRetries: 3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MISSIONMIND_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("MISSIONMIND_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.MetricsPort = n
		}
	}
	if v := os.Getenv("MISSIONMIND_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("MISSIONMIND_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MISSIONMIND_EVENTS_URL"); v != "" {
		cfg.Events.URL = v
	}
	if v := os.Getenv("MISSIONMIND_SUMMARIZER_URL"); v != "" {
		cfg.Summarizer.URL = v
	}
	if v := os.Getenv("MISSIONMIND_SWEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sweep.IntervalMs = n
		}
	}
	if v := os.Getenv("MISSIONMIND_SWEEP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sweep.Workers = n
		}
	}
	if v := os.Getenv("MISSIONMIND_HORIZON_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scoring.HorizonDays = n
		}
	}
	if v := os.Getenv("MISSIONMIND_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
