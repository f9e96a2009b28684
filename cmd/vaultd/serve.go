package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vaultd.dev/vault/account"
	"vaultd.dev/vault/amendment"
	"vaultd.dev/vault/chunkinfo"
	"vaultd.dev/vault/chunkstore"
	"vaultd.dev/vault/config"
	"vaultd.dev/vault/httpapi"
	"vaultd.dev/vault/overlay"
	"vaultd.dev/vault/requestexpectation"
	"vaultd.dev/vault/servicelogic"
	"vaultd.dev/vault/types"
	"vaultd.dev/vault/vaultservice"
	"vaultd.dev/vault/vcrypto"
)

// requestExpectationTTLSeconds bounds how long a "this account holder
// should expect an AmendAccount for this chunk" record survives, matching
// config.Default's 60-second account-amendment timeout so an expectation
// does not outlive the amendment it was recorded for.
const requestExpectationTTLSeconds = 60

// groupCacheMaxAge and the fail thresholds mirror the original
// AccountHoldersManager constants described in SPEC_FULL.md §9: a cached
// account-holder group survives for one minute, or until two of its
// members have each failed at least once; a member that fails twice is
// dropped from the cached group.
const (
	groupCacheMaxAgeMillis = 60_000
	groupCacheMaxFailNodes = 2
	groupCacheMaxFailsEach = 2
)

func serveCmd() *cobra.Command {
	var configPath string
	var keystorePath string
	var passphrase string
	var listenOverride string
	var peerFlags []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the vault RPC service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if listenOverride != "" {
				cfg.BindAddr = listenOverride
			}
			cfg.Peers = config.NormalizePeers(append(cfg.Peers, peerFlags...)...)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			if keystorePath == "" || passphrase == "" {
				return fmt.Errorf("missing required flags: --keystore and --passphrase")
			}
			_, _, _, self, err := loadKeystore(keystorePath, passphrase)
			if err != nil {
				return err
			}

			log := logrus.New()
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("log_level: %w", err)
			}
			log.SetLevel(level)
			log.SetFormatter(&logrus.JSONFormatter{})

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data_dir: %w", err)
			}

			crypto := vcrypto.StdProvider{}

			chunks, err := chunkstore.Open(filepath.Join(cfg.DataDir, "chunks"), cfg.AvailableSpace)
			if err != nil {
				return fmt.Errorf("open chunkstore: %w", err)
			}
			defer chunks.Close()

			accounts := account.NewHandler()
			acctStore, err := account.OpenStore(filepath.Join(cfg.DataDir, "accounts.db"))
			if err != nil {
				return fmt.Errorf("open account store: %w", err)
			}
			defer acctStore.Close()
			if err := acctStore.Load(accounts); err != nil {
				return fmt.Errorf("load account store: %w", err)
			}

			chunkInfo := chunkinfo.NewHandler(cfg.K, crypto, nil)
			ciStore, err := chunkinfo.OpenStore(filepath.Join(cfg.DataDir, "chunkinfo.db"))
			if err != nil {
				return fmt.Errorf("open chunk-info store: %w", err)
			}
			defer ciStore.Close()
			if err := ciStore.Load(chunkInfo); err != nil {
				return fmt.Errorf("load chunk-info store: %w", err)
			}

			baseOverlay := overlay.NewStaticOverlay(cfg.K)
			for _, p := range cfg.Peers {
				peer, err := parsePeerFlag(p)
				if err != nil {
					return fmt.Errorf("peer %q: %w", p, err)
				}
				baseOverlay.Join(peer)
			}
			groupCache := overlay.NewGroupCache(baseOverlay, groupCacheMaxAgeMillis,
				groupCacheMaxFailNodes, groupCacheMaxFailsEach, nowMillis)

			amendments := amendment.NewHandler(accounts, groupCache, crypto,
				cfg.KadUpperThreshold, cfg.MaxAccountAmendments, cfg.MaxRepeatedAccountAmendments,
				cfg.AccountAmendmentTimeoutMS, cfg.AccountAmendmentResultTimeoutMS, nowMillis)

			expectations := requestexpectation.NewHandler(requestExpectationTTLSeconds, nowSeconds)

			logic := servicelogic.New(groupCache)
			transport := httpapi.NewClient(baseOverlay, &http.Client{Timeout: 20 * time.Second})

			orch := vaultservice.New(cfg, self, crypto, chunks, accounts, chunkInfo, expectations, amendments, logic, transport)
			orch.SetLogger(log)

			if len(cfg.Peers) > 0 {
				if err := bootstrapSync(cmd.Context(), orch, baseOverlay, log); err != nil {
					log.WithError(err).Warn("startup sync failed; serving with local state only")
				}
			}
			orch.MarkStarted()

			server := httpapi.NewServer(orch, crypto, log)
			httpSrv := &http.Server{
				Addr:              cfg.BindAddr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go runCleanupSweep(cmd.Context(), orch, log)

			errCh := make(chan error, 1)
			go func() {
				log.WithField("addr", cfg.BindAddr).Info("vault serving")
				errCh <- httpSrv.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errCh:
				if err != nil && err != http.ErrServerClosed {
					return err
				}
			case <-sigCh:
				log.Info("shutting down")
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = httpSrv.Shutdown(ctx)
			}

			if err := acctStore.Save(accounts); err != nil {
				log.WithError(err).Error("final account save failed")
			}
			if err := ciStore.Save(chunkInfo); err != nil {
				log.WithError(err).Error("final chunk-info save failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&keystorePath, "keystore", "", "path to this vault's keystore file")
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "passphrase protecting the keystore")
	cmd.Flags().StringVar(&listenOverride, "listen", "", "override bind_addr from config")
	cmd.Flags().StringArrayVar(&peerFlags, "peer", nil, "pmidhex@host:port, may be repeated")
	return cmd
}

// parsePeerFlag parses "pmidhex@host:port" into an overlay.Peer.
func parsePeerFlag(s string) (overlay.Peer, error) {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return overlay.Peer{}, fmt.Errorf("expected pmidhex@host:port")
	}
	pmidHex, addr := s[:at], s[at+1:]
	raw, err := hex.DecodeString(pmidHex)
	if err != nil || len(raw) != types.IDLen {
		return overlay.Peer{}, fmt.Errorf("invalid pmid hex")
	}
	var pmid types.Pmid
	copy(pmid[:], raw)
	return overlay.Peer{ID: pmid, Addr: addr}, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func nowSeconds() int64 {
	return time.Now().Unix()
}

// bootstrapSync asks each configured peer in turn for GetSyncData (§4.9)
// until one answers, and applies that result before the vault starts
// serving mutating RPCs.
func bootstrapSync(ctx context.Context, orch *vaultservice.Orchestrator, ov *overlay.StaticOverlay, log *logrus.Logger) error {
	peers := ov.Peers()
	if len(peers) == 0 {
		return nil
	}
	client := httpapi.NewClient(ov, &http.Client{Timeout: 20 * time.Second})
	for _, p := range peers {
		snap, err := client.GetSyncData(ctx, p.ID)
		if err != nil {
			log.WithField("peer", p.ID).WithError(err).Warn("sync peer unreachable, trying next")
			continue
		}
		orch.ApplySyncData(snap)
		log.WithField("peer", p.ID).Info("startup sync complete")
		return nil
	}
	return fmt.Errorf("no configured peer answered GetSyncData")
}

// runCleanupSweep runs the expiry sweep of §4.7/§5 ("Cancellation... Expiry
// sweep serves as the bounded-time release for otherwise-stuck
// amendments") on a timer for the lifetime of the process.
func runCleanupSweep(ctx context.Context, orch *vaultservice.Orchestrator, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			amendmentsExpired, expectationsExpired, prepsReaped := orch.CleanUp()
			if amendmentsExpired+expectationsExpired+prepsReaped > 0 {
				log.WithFields(logrus.Fields{
					"amendments_expired":   amendmentsExpired,
					"expectations_expired": expectationsExpired,
					"preps_reaped":         prepsReaped,
				}).Debug("cleanup sweep")
			}
		}
	}
}
