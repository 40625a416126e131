// Package config loads and validates judgerd's environment-variable
// configuration (spec.md §6.4), with an optional YAML file overlay for
// operators running many Executors from a shared template.
package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Shared holds configuration common to both the Manager and Executor roles.
type Shared struct {
	ManagerIP         string
	ManagerPort       int
	ExecutorPort      int
	WebServerIP       string
	WebServerPort     int
	WebAccount        string
	WebPassword       string
	TmpDir            string
	LogDir            string
	KeepAliveInterval time.Duration
	ParallelBuild     int
}

// ManagerConfig adds the Manager-only setting to Shared.
type ManagerConfig struct {
	Shared
	DatabaseURL string
}

// ExecutorConfig is Shared as-is; the Executor role needs no extra fields
// beyond the common set.
type ExecutorConfig = Shared

const (
	defaultManagerPort  = 10010
	defaultExecutorPort = 10011
	defaultTmpDir       = "/tmp"
)

// fileOverlay is the optional YAML document read from --config /
// JUDGERD_CONFIG. Zero-valued fields simply leave the corresponding env var
// (or default) in effect.
type fileOverlay struct {
	ManagerIP         string `yaml:"manager_ip"`
	ManagerPort       int    `yaml:"manager_port"`
	ExecutorPort      int    `yaml:"executor_port"`
	WebServerIP       string `yaml:"web_server_ip"`
	WebServerPort     int    `yaml:"web_server_port"`
	WebAccount        string `yaml:"web_account"`
	WebPassword       string `yaml:"web_password"`
	TmpDir            string `yaml:"tmp_dir"`
	LogDir            string `yaml:"log_dir"`
	KeepAliveInterval string `yaml:"keep_alive_interval"`
	ParallelBuild     int    `yaml:"parallel_build"`
	DatabaseURL       string `yaml:"database_url"`
}

// loadOverlay reads an optional YAML config file. An empty path or a
// missing file is not an error — it simply means "env vars only".
func loadOverlay(path string) (*fileOverlay, error) {
	if path == "" {
		return &fileOverlay{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &fileOverlay{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var ov fileOverlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &ov, nil
}

// loadShared builds Shared from the overlay (if any) and environment
// variables. Explicit env vars always win over the file, which is the most
// specific override available to an operator.
func loadShared(ov *fileOverlay) Shared {
	s := Shared{
		ManagerIP:     firstNonEmpty(os.Getenv("MANAGER_IP"), ov.ManagerIP),
		ManagerPort:   envIntOr("MANAGER_PORT", firstPositive(ov.ManagerPort, defaultManagerPort)),
		ExecutorPort:  envIntOr("EXECUTOR_PORT", firstPositive(ov.ExecutorPort, defaultExecutorPort)),
		WebServerIP:   firstNonEmpty(os.Getenv("WEB_SERVER_IP"), ov.WebServerIP),
		WebServerPort: envIntOr("WEB_SERVER_PORT", ov.WebServerPort),
		WebAccount:    firstNonEmpty(os.Getenv("WEB_ACCOUNT"), ov.WebAccount),
		WebPassword:   firstNonEmpty(os.Getenv("WEB_PASSWORD"), ov.WebPassword),
		TmpDir:        firstNonEmpty(os.Getenv("TMP_DIR"), ov.TmpDir, defaultTmpDir),
		LogDir:        firstNonEmpty(os.Getenv("LOG_DIR"), ov.LogDir),
		ParallelBuild: envIntOr("PARALLEL_BUILD", firstPositive(ov.ParallelBuild, runtime.NumCPU())),
	}

	interval := firstNonEmpty(os.Getenv("KEEP_ALIVE_INTERVAL"), ov.KeepAliveInterval, "1")
	minutes, err := strconv.Atoi(interval)
	if err != nil {
		minutes = 1
	}
	s.KeepAliveInterval = time.Duration(minutes) * time.Minute

	if s.ParallelBuild <= 0 {
		s.ParallelBuild = 4
	}

	return s
}

// LoadManager builds the Manager's configuration from the optional config
// file at path plus environment variables, and validates it.
func LoadManager(path string) (*ManagerConfig, error) {
	ov, err := loadOverlay(path)
	if err != nil {
		return nil, err
	}
	cfg := &ManagerConfig{
		Shared:      loadShared(ov),
		DatabaseURL: firstNonEmpty(os.Getenv("SQLALCHEMY_DATABASE_URI"), ov.DatabaseURL),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadExecutor builds the Executor's configuration the same way.
func LoadExecutor(path string) (*ExecutorConfig, error) {
	ov, err := loadOverlay(path)
	if err != nil {
		return nil, err
	}
	cfg := loadShared(ov)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.ManagerIP == "" {
		return nil, fmt.Errorf("MANAGER_IP is required")
	}
	return &cfg, nil
}

func (s Shared) validate() error {
	if s.ManagerPort <= 0 || s.ManagerPort > 65535 {
		return fmt.Errorf("MANAGER_PORT=%d: not a valid port", s.ManagerPort)
	}
	if s.ExecutorPort <= 0 || s.ExecutorPort > 65535 {
		return fmt.Errorf("EXECUTOR_PORT=%d: not a valid port", s.ExecutorPort)
	}
	if s.TmpDir == "" {
		return fmt.Errorf("TMP_DIR must not be empty")
	}
	if info, err := os.Stat(s.TmpDir); err != nil || !info.IsDir() {
		return fmt.Errorf("TMP_DIR=%q: not an existing directory", s.TmpDir)
	}
	return nil
}

func (c *ManagerConfig) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("SQLALCHEMY_DATABASE_URI is required for the manager role")
	}
	return c.Shared.validate()
}

// ManagerListenAddr returns "host:port" for the Manager's own listener.
func (s Shared) ManagerListenAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(s.ManagerPort))
}

// ExecutorListenAddr returns "host:port" for the Executor's own listener.
func (s Shared) ExecutorListenAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(s.ExecutorPort))
}

// ManagerAddr returns "host:port" the Executor dials to reach the Manager.
func (s Shared) ManagerAddr() string {
	return net.JoinHostPort(s.ManagerIP, strconv.Itoa(s.ManagerPort))
}

// WebServerAddr returns "host:port" for the Web backend.
func (s Shared) WebServerAddr() string {
	return net.JoinHostPort(s.WebServerIP, strconv.Itoa(s.WebServerPort))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func envIntOr(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// ResolvePath finds the config file path: JUDGERD_CONFIG env var, then
// ./judgerd.yaml, then none. Mirrors the teacher's RAT_CONFIG precedence.
func ResolvePath() string {
	if p := os.Getenv("JUDGERD_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("judgerd.yaml"); err == nil {
		return "judgerd.yaml"
	}
	return ""
}
