// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/helix-cli/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig           `mapstructure:"logger" yaml:"logger"`
	Data     DataConfig             `mapstructure:"data" yaml:"data"`
	Archive  ArchiveConfig          `mapstructure:"archive" yaml:"archive"`
	Selector SelectorConfig         `mapstructure:"selector" yaml:"selector"`
	Voting   VotingConfig           `mapstructure:"voting" yaml:"voting"`
	Circuit  CircuitConfig          `mapstructure:"circuit" yaml:"circuit"`
	Proposer ProposerConfig         `mapstructure:"proposer" yaml:"proposer"`
	VCS      VCSConfig              `mapstructure:"vcs" yaml:"vcs"`
	Fitness  schemas.FitnessWeights `mapstructure:"fitness" yaml:"fitness"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DataConfig locates the durable state directory.
type DataConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ArchiveConfig selects and configures the evolution archive backend.
type ArchiveConfig struct {
	// Backend is "file" (append-only JSONL log) or "postgres".
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// PostgresConfig holds the connection details for a PostgreSQL database.
type PostgresConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"-"`
	DBName   string `mapstructure:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" yaml:"sslmode"`
}

// DSN renders the pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// SelectorConfig tunes parent selection.
type SelectorConfig struct {
	Strategy     string `mapstructure:"strategy" yaml:"strategy"`
	TournamentK  int    `mapstructure:"tournament_k" yaml:"tournament_k"`
	RecentWindow int    `mapstructure:"recent_window" yaml:"recent_window"`
}

// VotingConfig tunes the diverse-consensus review panel. The thresholds are
// status-quo values, not protocol constants.
type VotingConfig struct {
	RequiredVotes    int           `mapstructure:"required_votes" yaml:"required_votes"`
	ApprovalRatio    float64       `mapstructure:"approval_ratio" yaml:"approval_ratio"`
	DiversityFloor   float64       `mapstructure:"diversity_floor" yaml:"diversity_floor"`
	CategoryCap      int           `mapstructure:"category_cap" yaml:"category_cap"`
	FeedbackCap      int           `mapstructure:"feedback_cap" yaml:"feedback_cap"`
	Categories       []string      `mapstructure:"categories" yaml:"categories"`
	MaxConcurrent    int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	PerReviewTimeout time.Duration `mapstructure:"per_review_timeout" yaml:"per_review_timeout"`
	PanelTimeout     time.Duration `mapstructure:"panel_timeout" yaml:"panel_timeout"`
	PollRate         float64       `mapstructure:"poll_rate" yaml:"poll_rate"`
}

// CircuitConfig tunes the six-phase mutation circuit.
type CircuitConfig struct {
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	CoverageFloor     float64       `mapstructure:"coverage_floor" yaml:"coverage_floor"`
	BloatThreshold    float64       `mapstructure:"bloat_threshold" yaml:"bloat_threshold"`
	StrictMode        bool          `mapstructure:"strict_mode" yaml:"strict_mode"`
	CallTimeout       time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	LockTTL           time.Duration `mapstructure:"lock_ttl" yaml:"lock_ttl"`
	ForbiddenPatterns []string      `mapstructure:"forbidden_patterns" yaml:"forbidden_patterns"`
}

// ProposerConfig selects the change-proposal backend.
type ProposerConfig struct {
	// Mode is "mock" (deterministic stub) or "gemini".
	Mode        string        `mapstructure:"mode" yaml:"mode"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"-"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
}

// GitConfig defines the committer identity.
type GitConfig struct {
	AuthorName  string `mapstructure:"author_name" yaml:"author_name"`
	AuthorEmail string `mapstructure:"author_email" yaml:"author_email"`
}

// GitHubConfig defines the configuration for GitHub pull-request publication.
type GitHubConfig struct {
	Token      string `mapstructure:"token" yaml:"-"`
	RepoOwner  string `mapstructure:"repo_owner" yaml:"repo_owner"`
	RepoName   string `mapstructure:"repo_name" yaml:"repo_name"`
	BaseBranch string `mapstructure:"base_branch" yaml:"base_branch"`
}

// VCSConfig controls how accepted changes are committed and pushed.
type VCSConfig struct {
	DryRun bool         `mapstructure:"dry_run" yaml:"dry_run"`
	Branch string       `mapstructure:"branch" yaml:"branch"`
	Remote string       `mapstructure:"remote" yaml:"remote"`
	Git    GitConfig    `mapstructure:"git" yaml:"git"`
	GitHub GitHubConfig `mapstructure:"github" yaml:"github"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "helix-cli")
	v.SetDefault("logger.log_file", "helix.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Data / Archive --
	v.SetDefault("data.dir", "~/.helix")
	v.SetDefault("archive.backend", "file")
	v.SetDefault("archive.path", "") // derived from data.dir when empty
	v.SetDefault("archive.postgres.host", "localhost")
	v.SetDefault("archive.postgres.port", 5432)
	v.SetDefault("archive.postgres.user", "postgres")
	v.SetDefault("archive.postgres.password", "")
	v.SetDefault("archive.postgres.dbname", "helix_archive")
	v.SetDefault("archive.postgres.sslmode", "disable")

	// -- Selector --
	v.SetDefault("selector.strategy", "tournament")
	v.SetDefault("selector.tournament_k", 3)
	v.SetDefault("selector.recent_window", 5)

	// -- Voting --
	v.SetDefault("voting.required_votes", 25)
	v.SetDefault("voting.approval_ratio", 0.80)
	v.SetDefault("voting.diversity_floor", 0.70)
	v.SetDefault("voting.category_cap", 5)
	v.SetDefault("voting.feedback_cap", 3)
	v.SetDefault("voting.categories", []string{
		"security", "architecture", "testing", "performance", "readability",
	})
	v.SetDefault("voting.max_concurrent", 8)
	v.SetDefault("voting.per_review_timeout", "30s")
	v.SetDefault("voting.panel_timeout", "3m")
	v.SetDefault("voting.poll_rate", 50.0)

	// -- Circuit --
	v.SetDefault("circuit.max_retries", 2)
	v.SetDefault("circuit.coverage_floor", 40.0)
	v.SetDefault("circuit.bloat_threshold", 0.3)
	v.SetDefault("circuit.strict_mode", false)
	v.SetDefault("circuit.call_timeout", "2m")
	v.SetDefault("circuit.lock_ttl", "5m")
	v.SetDefault("circuit.forbidden_patterns", []string{
		"*secret*", "*credential*", "*.pem", "*.key", "*password*", "*.env",
	})

	// -- Proposer --
	v.SetDefault("proposer.mode", "mock")
	v.SetDefault("proposer.model", "gemini-2.5-pro")
	v.SetDefault("proposer.api_timeout", "5m")
	v.SetDefault("proposer.temperature", 0.2)

	// -- VCS --
	v.SetDefault("vcs.dry_run", true)
	v.SetDefault("vcs.branch", "helix/evolution")
	v.SetDefault("vcs.remote", "origin")
	v.SetDefault("vcs.git.author_name", "helix-evolution-bot")
	v.SetDefault("vcs.git.author_email", "evolution@helix.dev")
	v.SetDefault("vcs.github.base_branch", "main")

	// -- Fitness weights --
	w := schemas.DefaultFitnessWeights()
	v.SetDefault("fitness.correctness", w.Correctness)
	v.SetDefault("fitness.alignment", w.Alignment)
	v.SetDefault("fitness.elegance", w.Elegance)
	v.SetDefault("fitness.efficiency", w.Efficiency)
	v.SetDefault("fitness.safety", w.Safety)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	if err != nil {
		// Cannot happen with pure defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return cfg
}

// NewConfigFromViper creates a configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	_ = v.BindEnv("proposer.api_key", "HELIX_GEMINI_API_KEY")
	_ = v.BindEnv("vcs.github.token", "HELIX_GITHUB_TOKEN")
	_ = v.BindEnv("archive.postgres.password", "HELIX_ARCHIVE_PG_PASSWORD")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Proposer.Mode == "gemini" && cfg.Proposer.APIKey == "" {
		cfg.Proposer.APIKey = os.Getenv("HELIX_GEMINI_API_KEY")
	}

	// Resolve the data directory and derive dependent paths.
	dir, err := homedir.Expand(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("error expanding data dir %q: %w", cfg.Data.Dir, err)
	}
	cfg.Data.Dir = dir
	if cfg.Archive.Path == "" {
		cfg.Archive.Path = filepath.Join(dir, "archive.jsonl")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Archive.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("unknown archive backend %q", c.Archive.Backend)
	}
	if c.Voting.RequiredVotes < 1 {
		return fmt.Errorf("voting.required_votes must be positive, got %d", c.Voting.RequiredVotes)
	}
	if c.Voting.ApprovalRatio <= 0 || c.Voting.ApprovalRatio >= 1 {
		return fmt.Errorf("voting.approval_ratio must be in (0,1), got %v", c.Voting.ApprovalRatio)
	}
	if c.Circuit.MaxRetries < 0 {
		return fmt.Errorf("circuit.max_retries must be non-negative, got %d", c.Circuit.MaxRetries)
	}
	if c.Circuit.BloatThreshold <= 0 {
		return fmt.Errorf("circuit.bloat_threshold must be positive, got %v", c.Circuit.BloatThreshold)
	}
	if len(c.Voting.Categories) == 0 {
		return fmt.Errorf("voting.categories must not be empty")
	}
	return nil
}

// MetricsPath returns the location of the durable circuit metrics file.
func (c *Config) MetricsPath() string {
	return filepath.Join(c.Data.Dir, "metrics.json")
}

// LocksDir returns the directory holding per-file advisory locks.
func (c *Config) LocksDir() string {
	return filepath.Join(c.Data.Dir, "locks")
}
