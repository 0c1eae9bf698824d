package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/atomcache/atom"
	"github.com/yourusername/atomcache/config"
	"github.com/yourusername/atomcache/internal/intern"
	"github.com/yourusername/atomcache/logging"
	"github.com/yourusername/atomcache/metrics"
	"github.com/yourusername/atomcache/output"
	"github.com/yourusername/atomcache/ratelimit"
	"github.com/yourusername/atomcache/stats"
	"github.com/yourusername/atomcache/stress"
	"github.com/yourusername/atomcache/vocab"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "atomctl",
		Short: "atomctl exercises and inspects the atom interning tables.",
		Long: `atomctl drives the sharded, reference-counted string table that backs atoms.
It can hammer a table with concurrent workers to check identity and leak
invariants, and dump the entries a vocabulary produces.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			showVersion, err := cmd.Flags().GetBool("version")
			if err != nil {
				return err
			}
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "atomctl version: %s\n", version)
				fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", commit)
				fmt.Fprintf(cmd.OutOrStdout(), "built: %s\n", date)
				return nil
			}
			return cmd.Help()
		},
	}

	cfg = config.BindFlags(rootCmd)
	rootCmd.Flags().BoolP("version", "V", false, "Show atomctl version information and exit")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stress",
		Short: "Create and release atoms concurrently and verify the table stays consistent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd, cfg)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Intern a vocabulary and write the resulting entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, cfg)
		},
	})

	return rootCmd
}

func setup(cmd *cobra.Command, cfg *config.Config) (*logging.Logger, error) {
	if err := config.ApplyProfile(cfg, cmd); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	levelName := cfg.LogLevel
	if cfg.Verbose && !cmd.Flags().Changed("log-level") {
		levelName = "debug"
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	console := cmd.ErrOrStderr()
	if cfg.Silent {
		console = io.Discard
	}
	logger, err := logging.New(logging.Options{Level: level, Console: console, FilePath: cfg.LogFile})
	if err != nil {
		return nil, err
	}
	if cfg.ConfigPath != "" {
		logger.Debugf("Loaded configuration from %s", cfg.ConfigPath)
	}
	return logger, nil
}

func loadWords(cmd *cobra.Command, cfg *config.Config, logger *logging.Logger) ([]string, error) {
	if len(cfg.VocabPaths) == 0 {
		return vocab.Markup(), nil
	}
	var words []string
	for _, path := range cfg.VocabPaths {
		var (
			loaded []string
			err    error
		)
		if path == "-" {
			loaded, err = vocab.Read(cmd.InOrStdin())
		} else {
			loaded, err = vocab.Load(path)
		}
		if err != nil {
			return nil, err
		}
		logger.Debugf("Loaded %d word(s) from %s", len(loaded), path)
		words = append(words, loaded...)
	}
	words = vocab.Dedupe(words)
	if len(words) == 0 {
		return nil, fmt.Errorf("vocabulary %s produced no words", strings.Join(cfg.VocabPaths, ", "))
	}
	return words, nil
}

func newNamespace(cfg *config.Config) *atom.Namespace {
	var static *intern.PermanentSet
	if !cfg.NoStatic {
		static = atom.NewStaticSet(vocab.Markup())
	}
	return atom.NewNamespace(intern.NewTable(cfg.Buckets), static)
}

func runStress(cmd *cobra.Command, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := setup(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	words, err := loadWords(cmd, cfg, logger)
	if err != nil {
		return err
	}
	return stressNamespace(ctx, cmd.OutOrStdout(), cfg, logger, words, newNamespace(cfg))
}

// stressNamespace runs the stress workload against ns, serving metrics
// alongside it when configured, and prints the summary to out.
func stressNamespace(ctx context.Context, out io.Writer, cfg *config.Config, logger *logging.Logger, words []string, ns *atom.Namespace) error {
	logger.Infof("Stressing %d bucket(s) with %d worker(s) over %d word(s)", ns.Table().Stats().Buckets, cfg.Workers, len(words))

	g, gctx := errgroup.WithContext(ctx)
	var server *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg, ns.Table(), nil); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		server = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          log.New(logger.Named("metrics").Writer(logging.LevelError), "", 0),
		}
		g.Go(func() error {
			logger.Infof("Serving metrics on http://%s/metrics", cfg.MetricsAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	tracker := stats.NewTracker(stats.Options{Logger: logger, Interval: cfg.StatsInterval, Table: ns.Table()})
	tracker.Start(gctx.Done())

	var res stress.Result
	g.Go(func() error {
		if server != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}()
		}
		var runErr error
		res, runErr = stress.Run(gctx, stress.Options{
			Namespace:    ns,
			Words:        words,
			Workers:      cfg.Workers,
			OpsPerWorker: cfg.Ops,
			Duration:     cfg.Duration,
			Hold:         cfg.Hold,
			Seed:         cfg.Seed,
			Limiter:      ratelimit.New(cfg.Rate, 0),
			Tracker:      tracker,
			Logger:       logger,
		})
		return runErr
	})

	runErr := g.Wait()
	snapshot := tracker.Stop()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}

	fmt.Fprintf(out, "%s | leaked=%d\n", stats.Render(snapshot), res.Leaked())
	if res.After.MissedRemoves > 0 {
		logger.Warnf("%d remove call(s) found no entry", res.After.MissedRemoves)
	}
	if leaked := res.Leaked(); leaked != 0 {
		return fmt.Errorf("stress run left %d entr(ies) in the table", leaked)
	}
	return nil
}

func runDump(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := setup(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	words, err := loadWords(cmd, cfg, logger)
	if err != nil {
		return err
	}
	ns := newNamespace(cfg)
	table := ns.Table()

	atoms := make([]atom.Atom, 0, len(words))
	defer func() {
		for _, a := range atoms {
			a.Release()
		}
		logger.Debugf("Released %d atom(s); table now %s", len(atoms), stats.RenderTable(table.Stats()))
	}()
	for _, word := range words {
		atoms = append(atoms, ns.New(word))
	}

	dynamic := make(map[string]intern.EntryInfo)
	table.Walk(func(info intern.EntryInfo) bool {
		dynamic[info.Content] = info
		return true
	})

	records := make([]output.Record, 0, len(atoms))
	for _, a := range atoms {
		record := output.Record{Content: a.String(), Hash: output.FormatHash(a.Hash()), Bucket: -1, Static: a.IsStatic()}
		if info, ok := dynamic[a.String()]; ok && !a.IsStatic() {
			record.Bucket = info.Bucket
			record.Refs = info.Refs
		}
		records = append(records, record)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Static != records[j].Static {
			return records[i].Static
		}
		return records[i].Bucket < records[j].Bucket
	})

	writer, err := output.NewWriter(cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := writer.WriteRecord(record); err != nil {
			writer.Close()
			return fmt.Errorf("writing record: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}

	logger.Infof("Interned %d word(s): %s", len(words), stats.RenderTable(table.Stats()))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
