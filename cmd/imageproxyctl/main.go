// Copyright 2023 Wayback Archiver. All rights reserved.
// Use of this source code is governed by the MIT
// license that can be found in the LICENSE file.

// Command imageproxyctl is a small demo CLI exercising the imageproxy
// package's public API: it is not the mail client's FFI binding layer,
// just a standalone driver useful for manual testing of a WARP tunnel and
// a handful of image fetches.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/fatih/color"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/letterbox-mail/imageproxy"
)

var storagePath string

func main() {
	root := &cobra.Command{
		Use:     "imageproxyctl",
		Short:   "Drive the imageproxy package from the command line",
		Version: versioninfo.Short(),
	}
	root.PersistentFlags().StringVar(&storagePath, "storage", "", "path to warp_config.json (default: XDG data dir)")

	root.AddCommand(statusCmd(), fetchCmd(), clearCacheCmd(), shutdownCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func resolveStoragePath() (string, error) {
	if storagePath != "" {
		return storagePath, nil
	}
	return imageproxy.DefaultStoragePath()
}

func ensureInit(ctx context.Context) error {
	path, err := resolveStoragePath()
	if err != nil {
		return err
	}
	return imageproxy.Init(ctx, path)
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Provision/connect if needed and print tunnel + cache status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := ensureInit(ctx); err != nil {
				return err
			}
			st := imageproxy.Status()

			tbl := table.New("Field", "Value")
			tbl.AddRow("Initialized", st.Initialized)
			tbl.AddRow("Tunnel connected", colorBool(st.TunnelConnected))
			tbl.AddRow("Since handshake", st.SinceHandshake)
			tbl.AddRow("Cache entries", st.CacheEntries)
			tbl.Print()
			return nil
		},
	}
}

func colorBool(b bool) string {
	if b {
		return color.GreenString("true")
	}
	return color.RedString("false")
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Fetch one or more image URLs through the tunnel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			if err := ensureInit(ctx); err != nil {
				return err
			}

			if len(args) == 1 {
				result, err := imageproxy.FetchImage(ctx, args[0], nil)
				if err != nil {
					return err
				}
				fmt.Printf("%s: %s, %d bytes\n", args[0], result.ContentType, len(result.Data))
				return nil
			}

			results, err := imageproxy.FetchImagesBatch(ctx, args, nil)
			if err != nil {
				return err
			}
			tbl := table.New("URL", "Result")
			for _, r := range results {
				if r.Err != nil {
					tbl.AddRow(r.URL, color.RedString(r.Err.Error()))
					continue
				}
				tbl.AddRow(r.URL, fmt.Sprintf("%s, %d bytes", r.Result.ContentType, len(r.Result.Data)))
			}
			tbl.Print()
			return nil
		},
	}
}

func clearCacheCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Discard all cached responses",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := ensureInit(ctx); err != nil {
				return err
			}
			return imageproxy.ClearCache()
		},
	}
}

func shutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Tear down the tunnel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return imageproxy.Shutdown()
		},
	}
}
