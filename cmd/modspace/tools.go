package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xelth-com/modspace/internal/cache"
	"github.com/xelth-com/modspace/internal/config"
	"github.com/xelth-com/modspace/internal/defaults"
	"github.com/xelth-com/modspace/internal/gateway"
	"github.com/xelth-com/modspace/internal/localstore"
	"github.com/xelth-com/modspace/internal/schema"
)

// inspectCmd prints what the local cache holds
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show cached documents and pending changes in local storage",
	RunE:  runInspect,
}

// seedCmd stores the default documents on the gateway
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Store default documents on the gateway for modules that have none",
	Long: `Store default documents on the gateway for modules that have none.

Existing server documents are left untouched.`,
	RunE: runSeed,
}

var seedIDs = []string{schema.TasksID, schema.NotesID, schema.AssistantID, schema.FrameworkID}

func init() {
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(seedCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	storage, err := localstore.Open(cfg.Storage, cfg.Database, zap.NewNop())
	if err != nil {
		return err
	}
	defer storage.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "📦 %s (%s)\n", cfg.Namespace, cfg.Storage.Driver)
	return inspect(storage, cfg.Namespace, cmd.OutOrStdout())
}

// inspect reads the persisted keys of namespace without opening a cache
// session, so the storage is left exactly as it was.
func inspect(storage localstore.Storage, namespace string, out io.Writer) error {
	keys := cache.KeysFor(namespace)

	docs := map[string]json.RawMessage{}
	times := map[string]int64{}
	raw, ok, err := storage.Get(keys.Cache)
	if err != nil {
		return fmt.Errorf("read cache: %w", err)
	}
	if ok {
		if docs, times, err = cache.DecodeBlob(raw); err != nil {
			return err
		}
	}

	pending := map[string]bool{}
	raw, ok, err = storage.Get(keys.Pending)
	if err != nil {
		return fmt.Errorf("read pending set: %w", err)
	}
	if ok {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return fmt.Errorf("decode pending set: %w", err)
		}
		for _, id := range ids {
			pending[id] = true
		}
	}

	mode, _, err := storage.Get(keys.WorkMode)
	if err != nil {
		return fmt.Errorf("read work mode: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		synced := "never"
		if ms := times[id]; ms > 0 {
			synced = time.UnixMilli(ms).UTC().Format(time.RFC3339)
		}
		mark := ""
		if pending[id] {
			mark = " ⏳ pending"
		}
		fmt.Fprintf(out, "  %-32s %6d bytes  synced %s%s\n", id, len(docs[id]), synced, mark)
	}
	fmt.Fprintf(out, "%d pending, work mode %q\n", len(pending), mode)
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	gw := gateway.NewClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		Nonce:       cfg.Gateway.Nonce,
		NonceHeader: cfg.Gateway.NonceHeader,
		Timeout:     time.Duration(cfg.Gateway.Timeout) * time.Second,
	}, nil)
	return seed(cmd.Context(), gw, cmd, time.Now())
}

func seed(ctx context.Context, gw *gateway.Client, cmd *cobra.Command, now time.Time) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()
	for _, id := range seedIDs {
		_, err := gw.Get(ctx, id)
		switch {
		case err == nil:
			fmt.Fprintf(out, "⏭️  %s already exists\n", id)
			continue
		case !errors.Is(err, gateway.ErrNotFound):
			return fmt.Errorf("check %s: %w", id, err)
		}

		if err := gw.Save(ctx, id, defaults.Document(id, now)); err != nil {
			return fmt.Errorf("seed %s: %w", id, err)
		}
		fmt.Fprintf(out, "✅ %s seeded\n", id)
	}
	return nil
}
