package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	aside "github.com/eugener/aside/internal"
	"github.com/eugener/aside/internal/engine"
)

// fetchCmd runs a single fetch-or-populate against the configured store,
// without starting the HTTP server.
func fetchCmd(g *globalFlags) *cobra.Command {
	var (
		ttl     int
		payload string
	)

	cmd := &cobra.Command{
		Use:   "fetch KEY",
		Short: "Fetch a key, populating the cache on a miss",
		Long: "Fetch a key through the cache. On a miss the value comes from --payload " +
			"when given, otherwise from the source routed for the key.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			comps, err := build(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer comps.Close()

			req := aside.FetchRequest{Key: args[0], TTL: aside.TTL(cfg.Cache.DefaultTTLs)}
			if cmd.Flags().Changed("ttl") {
				req.TTL = aside.TTL(ttl)
			}
			if cmd.Flags().Changed("payload") {
				req.Mode = aside.ModeCallerSupplied
				req.Payload = json.RawMessage(payload)
			}
			return runFetch(cmd, comps.engine, req)
		},
	}
	cmd.Flags().IntVar(&ttl, "ttl", 0, "entry TTL in seconds (default cache.default_ttl_s)")
	cmd.Flags().StringVar(&payload, "payload", "", "JSON value to store on a miss instead of resolving")
	return cmd
}

func runFetch(cmd *cobra.Command, eng *engine.Engine, req aside.FetchRequest) error {
	res, err := eng.Fetch(cmd.Context(), req)
	if err != nil {
		return err
	}
	if res.Warning != nil {
		slog.Warn("value not cached", "key", req.Key, "error", res.Warning)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func invalidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate KEY",
		Short: "Remove a key from the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			comps, err := build(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer comps.Close()

			res, err := comps.engine.Invalidate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], res)
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
