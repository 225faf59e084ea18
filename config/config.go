package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AllowedOrigins     []string
	JWTKey             string
	PostgresURL        string
	ListenAddr         string
	Debug              bool
	MaxLobbies         int
	MaxPlayersPerLobby int
	SweepInterval      time.Duration
	StrictTransitions  bool
	GuestTokenAge      time.Duration
}

func Default() Config {
	return Config{
		ListenAddr:         ":5000",
		MaxLobbies:         64,
		MaxPlayersPerLobby: 8,
		SweepInterval:      30 * time.Second,
		GuestTokenAge:      7 * 24 * time.Hour,
	}
}

// Load reads the configuration from the environment. ALLOWED_ORIGINS and
// JWT_KEY are required, everything else falls back to Default.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	ALLOWED_ORIGINS, exists := lookup("ALLOWED_ORIGINS")
	if !exists {
		return cfg, fmt.Errorf("missing allowed origins")
	}
	cfg.AllowedOrigins = strings.Split(ALLOWED_ORIGINS, ",")

	JWT_KEY, exists := lookup("JWT_KEY")
	if !exists {
		return cfg, fmt.Errorf("missing jwt signing key")
	}
	cfg.JWTKey = JWT_KEY

	cfg.PostgresURL, _ = lookup("POSTGRES_URL")

	if v, ok := lookup("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	var err error
	if cfg.Debug, err = boolEnv(lookup, "DEBUG", false); err != nil {
		return cfg, err
	}
	if cfg.StrictTransitions, err = boolEnv(lookup, "STRICT_TRANSITIONS", false); err != nil {
		return cfg, err
	}
	if cfg.MaxLobbies, err = intEnv(lookup, "MAX_LOBBIES", cfg.MaxLobbies); err != nil {
		return cfg, err
	}
	if cfg.MaxPlayersPerLobby, err = intEnv(lookup, "MAX_PLAYERS_PER_LOBBY", cfg.MaxPlayersPerLobby); err != nil {
		return cfg, err
	}
	if cfg.SweepInterval, err = durationEnv(lookup, "SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return cfg, err
	}
	if cfg.GuestTokenAge, err = durationEnv(lookup, "GUEST_TOKEN_AGE", cfg.GuestTokenAge); err != nil {
		return cfg, err
	}

	if cfg.MaxLobbies < 1 || cfg.MaxPlayersPerLobby < 1 {
		return cfg, fmt.Errorf("MAX_LOBBIES and MAX_PLAYERS_PER_LOBBY must be positive")
	}
	return cfg, nil
}

func boolEnv(lookup func(string) (string, bool), key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func intEnv(lookup func(string) (string, bool), key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("invalid %s: must be positive, got %s", key, v)
	}
	return d, nil
}
