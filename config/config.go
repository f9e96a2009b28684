// Package config holds the vault's configuration struct: every option of
// spec §6.3 plus the ambient options (data dir, bind address, log level,
// peers) the teacher's node.Config carried.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the one configuration struct passed to every handler that
// needs it, so cross-handler options never drift out of sync (§9 design
// note: "pass a plain configuration struct").
type Config struct {
	Network  string   `yaml:"network"`
	DataDir  string   `yaml:"data_dir"`
	BindAddr string   `yaml:"bind_addr"`
	LogLevel string   `yaml:"log_level"`
	Peers    []string `yaml:"peers"`
	MaxPeers int      `yaml:"max_peers"`

	// K is the replication factor: max size of a chunk's watch_list and
	// reference_list, and the close-node fanout width.
	K int `yaml:"k"`
	// KadUpperThreshold is the quorum size for an account amendment.
	// Must be <= K and > K/2.
	KadUpperThreshold int `yaml:"kad_upper_threshold"`
	// MaxAccountAmendments bounds in-flight amendments globally.
	MaxAccountAmendments int `yaml:"max_account_amendments"`
	// MaxRepeatedAccountAmendments bounds in-flight amendments sharing an
	// identical (pmid, field, size, increase) tuple.
	MaxRepeatedAccountAmendments int `yaml:"max_repeated_account_amendments"`
	// AccountAmendmentTimeoutMS bounds how long an in-flight amendment may
	// wait for quorum before clean_up() erases it.
	AccountAmendmentTimeoutMS int64 `yaml:"account_amendment_timeout_ms"`
	// AccountAmendmentResultTimeoutMS bounds how long a finished amendment
	// is kept after reaching quorum, so a late or repeated assertion from
	// an already-counted holder is answered with AccountAmendmentNotFound
	// instead of silently starting a new amendment.
	AccountAmendmentResultTimeoutMS int64 `yaml:"account_amendment_result_timeout_ms"`
	// MaxChunkStoreRetries and MaxLoadRetries are client-side constants.
	// The service uses MaxChunkStoreRetries only to reap stale StorePrep
	// entries in Orchestrator.CleanUp; MaxLoadRetries is carried but unused.
	MaxChunkStoreRetries int `yaml:"max_chunk_store_retries"`
	MaxLoadRetries       int `yaml:"max_load_retries"`
	// MinRegularFileSize is the boundary between "small" and "regular"
	// file types; affects only the out-of-core encryption path, which is
	// out of scope here; the value is carried in the config, and no RPC
	// reports it.
	MinRegularFileSize uint64 `yaml:"min_regular_file_size"`
	// AvailableSpace is the byte budget of the ChunkStore.
	AvailableSpace uint64 `yaml:"available_space"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".vaultd"
	}
	return filepath.Join(home, ".vaultd")
}

func Default() Config {
	return Config{
		Network:  "devnet",
		DataDir:  DefaultDataDir(),
		BindAddr: "0.0.0.0:7700",
		Peers:    nil,
		LogLevel: "info",
		MaxPeers: 64,

		K:                               4,
		KadUpperThreshold:               3,
		MaxAccountAmendments:            10000,
		MaxRepeatedAccountAmendments:    10,
		AccountAmendmentTimeoutMS:       60_000,
		AccountAmendmentResultTimeoutMS: 300_000,
		MaxChunkStoreRetries:            3,
		MaxLoadRetries:                  3,
		MinRegularFileSize:              1 << 20,
		AvailableSpace:                  1 << 34,
	}
}

func NormalizePeers(raw ...string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, token := range raw {
		for _, p := range strings.Split(token, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

// Validate checks every option, including the quorum relationship
// kAccountAmendmentTimeout > 0 (and its result timeout > 0),
// 0 < KadUpperThreshold <= K, and
// K/2 < KadUpperThreshold (§6.3: "must be ≤ K and > K/2").
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	if err := validateAddr(cfg.BindAddr); err != nil {
		return fmt.Errorf("invalid bind_addr: %w", err)
	}
	for _, peer := range cfg.Peers {
		if err := validatePeerAddr(peer); err != nil {
			return fmt.Errorf("invalid peer %q: %w", peer, err)
		}
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.MaxPeers <= 0 {
		return errors.New("max_peers must be > 0")
	}
	if cfg.MaxPeers > 4096 {
		return errors.New("max_peers must be <= 4096")
	}
	if cfg.K <= 0 {
		return errors.New("k must be > 0")
	}
	if cfg.KadUpperThreshold <= 0 || cfg.KadUpperThreshold > cfg.K {
		return fmt.Errorf("kad_upper_threshold must be in (0, k=%d]", cfg.K)
	}
	if cfg.KadUpperThreshold*2 <= cfg.K {
		return fmt.Errorf("kad_upper_threshold (%d) must be > k/2 (%d)", cfg.KadUpperThreshold, cfg.K)
	}
	if cfg.MaxAccountAmendments <= 0 {
		return errors.New("max_account_amendments must be > 0")
	}
	if cfg.MaxRepeatedAccountAmendments <= 0 {
		return errors.New("max_repeated_account_amendments must be > 0")
	}
	if cfg.AccountAmendmentTimeoutMS <= 0 {
		return errors.New("account_amendment_timeout_ms must be > 0")
	}
	if cfg.AccountAmendmentResultTimeoutMS <= 0 {
		return errors.New("account_amendment_result_timeout_ms must be > 0")
	}
	return nil
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

func validatePeerAddr(addr string) error {
	if err := validateAddr(addr); err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(addr)
	if strings.TrimSpace(host) == "" {
		return errors.New("missing host")
	}
	return nil
}

// Load reads a YAML config file, filling in defaults for unset fields.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
