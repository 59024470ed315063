package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tourney-engine/internal/constants"
	"tourney-engine/internal/lifecycle"
	"tourney-engine/internal/scoring"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath         string
	StoreDriver    string // sqlite or memory
	ServerPort     string
	LogLevel       string
	ProblemsURL    string
	ProblemsAPIKey string
	ProblemsFile   string
	ProblemsRPS    float64
	TickInterval   time.Duration
	DefaultRating  int
	RulesFile      string

	Rules  scoring.Rules
	Timing lifecycle.Timing
	Engine EngineRules
}

// EngineRules are the tunables outside scoring and game timing.
type EngineRules struct {
	SwissLookahead int           `yaml:"swiss_lookahead"`
	FreePauses     int           `yaml:"free_pauses"`
	RejoinCooldown time.Duration `yaml:"rejoin_cooldown"`
}

type rulesFile struct {
	Scoring *scoring.Rules    `yaml:"scoring"`
	Timing  *lifecycle.Timing `yaml:"timing"`
	Engine  *EngineRules      `yaml:"engine"`
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:         getEnv("DB_PATH", "tourney.db"),
		StoreDriver:    getEnv("STORE_DRIVER", "sqlite"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ProblemsURL:    getEnv("PROBLEMS_URL", ""),
		ProblemsAPIKey: getEnv("PROBLEMS_API_KEY", ""),
		ProblemsFile:   getEnv("PROBLEMS_FILE", ""),
		ProblemsRPS:    getEnvFloat("PROBLEMS_RPS", 20),
		TickInterval:   getEnvDuration("TICK_INTERVAL", constants.DefaultTickInterval),
		DefaultRating:  getEnvInt("DEFAULT_RATING", constants.DefaultRating),
		RulesFile:      getEnv("RULES_FILE", ""),
		Rules:          scoring.DefaultRules(),
		Timing:         lifecycle.DefaultTiming(),
		Engine: EngineRules{
			SwissLookahead: constants.DefaultSwissLookahead,
			FreePauses:     constants.DefaultFreePauses,
			RejoinCooldown: constants.DefaultRejoinCooldown,
		},
	}

	if cfg.ProblemsURL == "" && cfg.ProblemsFile == "" {
		return nil, fmt.Errorf("PROBLEMS_URL or PROBLEMS_FILE is required")
	}
	if cfg.StoreDriver != "sqlite" && cfg.StoreDriver != "memory" {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if cfg.RulesFile != "" {
		data, err := os.ReadFile(cfg.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read rules file: %w", err)
		}
		if err := cfg.ApplyRules(data); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("store_driver", cfg.StoreDriver).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Dur("tick_interval", cfg.TickInterval).
		Int("base_points", cfg.Rules.BasePoints).
		Dur("countdown", cfg.Timing.Countdown).
		Msg("configuration loaded")

	return cfg, nil
}

// ApplyRules overlays a YAML rules document. Sections that are absent keep their defaults;
// fields absent inside a present section keep theirs too.
func (c *Config) ApplyRules(data []byte) error {
	doc := rulesFile{Scoring: &c.Rules, Timing: &c.Timing, Engine: &c.Engine}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}
	if c.Timing.MaxMistakes < 1 {
		return fmt.Errorf("max_mistakes must be at least 1")
	}
	if c.Rules.BasePoints < 0 || c.Rules.BerserkBonus < 0 {
		return fmt.Errorf("points must not be negative")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
