package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration so main stays lean.
type Server struct {
	Addr        string
	Env         string
	DatabaseURL string

	TokenSigningSecret string
	TokenSigningAlg    string // HS256, HS384 or HS512
	TokenIssuer        string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration

	BcryptCost int

	VerificationCodeTTL time.Duration
	CodeRateLimit       int
	CodeRateWindow      time.Duration

	CleanupInterval time.Duration
}

// minProductionSecretLen is the minimum signing secret length accepted when
// ENV=production. HMAC secrets shorter than the hash block size weaken the MAC.
const minProductionSecretLen = 64

// FromEnv builds a Server config from environment variables.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:                getEnv("EDUID_ADDR", ":8080"),
		Env:                 getEnv("ENV", "development"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		TokenSigningSecret:  getEnv("TOKEN_SIGNING_SECRET", "dev-secret-change-in-production"),
		TokenSigningAlg:     getEnv("TOKEN_SIGNING_ALG", "HS256"),
		TokenIssuer:         getEnv("TOKEN_ISSUER", "eduid"),
		AccessTokenTTL:      getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:     getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		BcryptCost:          getInt("BCRYPT_COST", 12),
		VerificationCodeTTL: getDuration("VERIFICATION_CODE_TTL", 5*time.Minute),
		CodeRateLimit:       getInt("CODE_RATE_LIMIT", 5),
		CodeRateWindow:      getDuration("CODE_RATE_WINDOW", time.Hour),
		CleanupInterval:     getDuration("CLEANUP_INTERVAL", 0),
	}

	if cfg.Env == "production" && len(cfg.TokenSigningSecret) < minProductionSecretLen {
		return Server{}, fmt.Errorf("TOKEN_SIGNING_SECRET must be at least %d bytes in production", minProductionSecretLen)
	}
	switch cfg.TokenSigningAlg {
	case "HS256", "HS384", "HS512":
	default:
		return Server{}, fmt.Errorf("unsupported TOKEN_SIGNING_ALG %q", cfg.TokenSigningAlg)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
