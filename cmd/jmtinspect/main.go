package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"jmtstore/config"
	"jmtstore/jmt"
	"jmtstore/kv"
)

type options struct {
	backend    string
	path       string
	configFile string
}

func rootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "jmtinspect",
		Short:         "Inspect a JMT node store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.backend, "backend", config.BackendPebble, "engine backend: pebble, badger or leveldb")
	root.PersistentFlags().StringVar(&opts.path, "path", "", "database directory")
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "YAML config file; --backend and --path override it when set")

	root.AddCommand(
		statsCommand(opts),
		dumpCommand(opts),
		getValueCommand(opts),
		rightmostCommand(opts),
		staleCommand(opts),
	)
	return root
}

// openStore opens the store read-only.
func openStore(cmd *cobra.Command, opts *options) (*jmt.Store, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		loaded, err := config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("backend") || opts.configFile == "" {
		cfg.Engine.Backend = opts.backend
	}
	if cmd.Flags().Changed("path") || opts.configFile == "" {
		cfg.Engine.Path = opts.path
	}
	if cfg.Engine.Path == "" {
		return nil, fmt.Errorf("--path is required")
	}
	cfg.Engine.ReadOnly = true
	cfg.Metrics.Enabled = false
	return jmt.OpenStore(cfg)
}

func statsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print entry counts and sizes per namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats()
			if err != nil {
				return err
			}
			namespaces := make([]jmt.Namespace, 0, len(stats))
			for ns := range stats {
				namespaces = append(namespaces, ns)
			}
			sort.Slice(namespaces, func(i, j int) bool { return namespaces[i] < namespaces[j] })

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-10s %14s %12s %12s %10s\n", "namespace", "entries", "keys", "values", "corrupted")
			var total jmt.NamespaceStats
			for _, ns := range namespaces {
				st := stats[ns]
				fmt.Fprintf(out, "%-10s %14s %12s %12s %10s\n", ns,
					humanize.Comma(int64(st.Entries)),
					humanize.Bytes(uint64(st.KeyBytes)),
					humanize.Bytes(uint64(st.ValueBytes)),
					humanize.Comma(int64(st.Corrupted)))
				total.Entries += st.Entries
				total.KeyBytes += st.KeyBytes
				total.ValueBytes += st.ValueBytes
				total.Corrupted += st.Corrupted
			}
			fmt.Fprintf(out, "%-10s %14s %12s %12s %10s\n", "total",
				humanize.Comma(int64(total.Entries)),
				humanize.Bytes(uint64(total.KeyBytes)),
				humanize.Bytes(uint64(total.ValueBytes)),
				humanize.Comma(int64(total.Corrupted)))
			return nil
		},
	}
}

func dumpCommand(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "print decoded entries in key order",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			count := 0
			err = store.Walk(func(r jmt.Record) error {
				if limit > 0 && count >= limit {
					return kv.ErrStop
				}
				count++
				fmt.Fprintln(out, r.String())
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s entries shown\n", humanize.Comma(int64(count)))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum entries to print, 0 for all")
	return cmd
}

func getValueCommand(opts *options) *cobra.Command {
	var (
		keyHash string
		version uint64
	)
	cmd := &cobra.Command{
		Use:   "get-value",
		Short: "print the newest value of a key at or before a version",
		RunE: func(cmd *cobra.Command, args []string) error {
			kh, err := jmt.KeyHashFromHex(keyHash)
			if err != nil {
				return err
			}
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			entry, err := store.GetValue(kh, jmt.Version(version))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if entry.Deleted {
				fmt.Fprintf(out, "%s@%d: deleted\n", kh, entry.Version)
				return nil
			}
			fmt.Fprintf(out, "%s@%d: %x (%s)\n", kh, entry.Version, entry.Payload, humanize.Bytes(uint64(len(entry.Payload))))
			if raw, err := store.GetPreimage(kh); err == nil {
				fmt.Fprintf(out, "preimage: %q\n", raw)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyHash, "key-hash", "", "hex encoded key hash")
	cmd.Flags().Uint64Var(&version, "version", ^uint64(0), "maximum version (default: latest)")
	_ = cmd.MarkFlagRequired("key-hash")
	return cmd
}

func rightmostCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rightmost <version>",
		Short: "print the rightmost leaf of the tree committed at a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			key, leaf, err := store.GetRightmostLeaf(jmt.Version(version))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> key=%s value=%s\n", key, leaf.KeyHash, leaf.ValueHash)
			return nil
		},
	}
}

func staleCommand(opts *options) *cobra.Command {
	var upTo uint64
	cmd := &cobra.Command{
		Use:   "stale",
		Short: "list recorded stale node indices",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd, opts)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			count := 0
			err = store.IterateStaleNodeIndices(jmt.Version(upTo), func(idx jmt.StaleNodeIndex) error {
				count++
				fmt.Fprintf(out, "%s stale since %d\n", idx.NodeKey, idx.StaleSinceVersion)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s stale nodes\n", humanize.Comma(int64(count)))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&upTo, "up-to", ^uint64(0), "only indices stale since at most this version")
	return cmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}
}
