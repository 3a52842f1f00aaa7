package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	// Identity is the external OIDC provider. Tokens are verified against
	// its JWKS endpoint; admin metadata is pushed through its management API.
	Identity struct {
		Issuer          string `yaml:"issuer"`
		Audience        string `yaml:"audience"`
		JWKSURL         string `yaml:"jwks_url"` // optional override, defaults to issuer/.well-known/jwks.json
		ManagementURL   string `yaml:"management_url"`
		ManagementToken string `yaml:"management_token"`
	} `yaml:"identity"`

	Stripe struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		SuccessURL    string `yaml:"success_url"`
		CancelURL     string `yaml:"cancel_url"`
	} `yaml:"stripe"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
		Enabled      bool   `yaml:"enabled"`
	} `yaml:"email"`

	Worker struct {
		// Cron spec for the expiry sweep, e.g. "0 */6 * * *".
		ExpirySchedule string `yaml:"expiry_schedule"`
	} `yaml:"worker"`
}

var AppConfig *Config

// LoadConfig reads config.yaml unless DATABASE_URL is set, in which case the
// whole configuration comes from environment variables (test and container
// deployments).
func LoadConfig() {
	var cfg Config

	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("failed to parse config file at %s: %v", configPath, err)
		}

		applyEnvOverrides(&cfg)
		if cfg.Worker.ExpirySchedule == "" {
			cfg.Worker.ExpirySchedule = "0 */6 * * *"
		}
		AppConfig = &cfg
		return
	}

	cfg.Database.DSN = dbURL
	cfg.Server.Env = os.Getenv("SERVER_ENV")
	cfg.Server.Port, _ = strconv.Atoi(os.Getenv("SERVER_PORT"))
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	applyEnvOverrides(&cfg)
	if cfg.Worker.ExpirySchedule == "" {
		cfg.Worker.ExpirySchedule = "0 */6 * * *"
	}

	AppConfig = &cfg
}

// applyEnvOverrides lets secrets come from the environment even when the
// rest of the config is file-based.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("IDENTITY_MANAGEMENT_URL"); v != "" {
		cfg.Identity.ManagementURL = v
	}
	if v := os.Getenv("IDENTITY_MANAGEMENT_TOKEN"); v != "" {
		cfg.Identity.ManagementToken = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("STRIPE_SUCCESS_URL"); v != "" {
		cfg.Stripe.SuccessURL = v
	}
	if v := os.Getenv("STRIPE_CANCEL_URL"); v != "" {
		cfg.Stripe.CancelURL = v
	}
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}
