package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"vaultd.dev/vault/account"
	"vaultd.dev/vault/chunkinfo"
	"vaultd.dev/vault/config"
	"vaultd.dev/vault/httpapi"
	"vaultd.dev/vault/overlay"
	"vaultd.dev/vault/vcrypto"
)

// syncCmd pulls a one-shot GetSyncData snapshot (§4.9) from a peer and
// persists it locally, so an operator can pre-seed a new vault's account
// and chunk-info stores before its first `serve` without waiting on the
// automatic bootstrap-on-join path.
func syncCmd() *cobra.Command {
	var configPath string
	var peerFlag string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "pull account and chunk-info state from a running peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			if peerFlag == "" {
				return fmt.Errorf("missing required flag: --peer (pmidhex@host:port)")
			}
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			peer, err := parsePeerFlag(peerFlag)
			if err != nil {
				return fmt.Errorf("--peer: %w", err)
			}

			ov := overlay.NewStaticOverlay(1)
			ov.Join(peer)
			client := httpapi.NewClient(ov, &http.Client{Timeout: 20 * time.Second})

			ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
			defer cancel()
			snap, err := client.GetSyncData(ctx, peer.ID)
			if err != nil {
				return fmt.Errorf("fetch sync data: %w", err)
			}

			if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data_dir: %w", err)
			}

			accounts := account.NewHandler()
			accounts.Restore(snap.Accounts)
			acctStore, err := account.OpenStore(filepath.Join(cfg.DataDir, "accounts.db"))
			if err != nil {
				return fmt.Errorf("open account store: %w", err)
			}
			defer acctStore.Close()
			if err := acctStore.Save(accounts); err != nil {
				return fmt.Errorf("save accounts: %w", err)
			}

			chunkInfo := chunkinfo.NewHandler(cfg.K, vcrypto.StdProvider{}, nil)
			chunkInfo.Restore(snap.ChunkInfos)
			ciStore, err := chunkinfo.OpenStore(filepath.Join(cfg.DataDir, "chunkinfo.db"))
			if err != nil {
				return fmt.Errorf("open chunk-info store: %w", err)
			}
			defer ciStore.Close()
			if err := ciStore.Save(chunkInfo); err != nil {
				return fmt.Errorf("save chunk-info: %w", err)
			}

			fmt.Printf("synced %d accounts, %d chunk-infos from %s\n", len(snap.Accounts), len(snap.ChunkInfos), peer.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file (uses its data_dir)")
	cmd.Flags().StringVar(&peerFlag, "peer", "", "pmidhex@host:port of a live peer to sync from")
	return cmd
}
