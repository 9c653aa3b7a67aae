package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/plan-systems/klog"
	"github.com/qbound/qbound/libqb/catalog"
	"github.com/qbound/qbound/libqb/config"
	"github.com/qbound/qbound/libqb/engine"
	"github.com/qbound/qbound/libqb/graph"
	"github.com/qbound/qbound/libqb/metrics"
	"github.com/qbound/qbound/libqb/query"
	"github.com/qbound/qbound/libqb/seed"
	"github.com/qbound/qbound/libqb/stratum"
	"github.com/qbound/qbound/qbound"
	"github.com/spf13/cobra"
)

var (
	cfg   config.Config
	flags struct {
		configPath  string
		dataDir     string
		maxVerts    int
		invariant   string
		catalogPath string
		metricsAddr string
		every       int
		source      string
		matrix      bool
		yes         bool
	}
)

var (
	rootCmd = &cobra.Command{
		Use:               "qbound",
		Short:             "Propagates a minor-monotone graph invariant over all connected graphs and finds the minimal ones",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run or resume both passes over the store",
		Args:  cobra.NoArgs,
		RunE:  runPasses,
	}
	frontierCmd = &cobra.Command{
		Use:   "frontier",
		Short: "Report where a run would resume and what the store reloaded",
		Args:  cobra.NoArgs,
		RunE:  runFrontier,
	}
	valueCmd = &cobra.Command{
		Use:   "value <graph>",
		Short: "Print the recorded value of a graph (graph6, edge expression, or --matrix rows)",
		Args:  cobra.ExactArgs(1),
		RunE:  runValue,
	}
	minimalsCmd = &cobra.Command{
		Use:   "minimals [value]",
		Short: "List the minimal graphs for a value, or every value with minimal graphs",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMinimals,
	}
	representCmd = &cobra.Command{
		Use:   "represent <graph>",
		Short: "Find a minimal graph with the same value that the given graph has as a minor",
		Args:  cobra.ExactArgs(1),
		RunE:  runRepresent,
	}
	fetchCmd = &cobra.Command{
		Use:   "fetch",
		Short: "Download the published dataset into the catalog",
		Args:  cobra.NoArgs,
		RunE:  runFetch,
	}
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Copy the store's values and minimal graphs into the catalog",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective config",
		Args:  cobra.NoArgs,
		RunE:  runConfig,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "qbound.yaml", "YAML config file (optional)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "store directory")
	pf.IntVar(&flags.maxVerts, "max-vertices", 0, "largest graph order to process")
	pf.StringVar(&flags.invariant, "invariant", "", "oracle: cycle-rank, max-degree, seed, or python:<script>")
	pf.StringVar(&flags.catalogPath, "catalog", "", "badger catalog directory")
	pf.StringVar(&flags.source, "source", "store", "lookup source: store, catalog, or seed")
	pf.BoolVar(&flags.matrix, "matrix", false, "graph arguments are adjacency matrix rows, e.g. 011,101,110")

	runCmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")
	runCmd.Flags().IntVar(&flags.every, "every", 0, "checkpoint every this many graphs (0 sizes it per stratum)")
	minimalsCmd.Flags().BoolVar(&flags.yes, "yes", false, "list long results without asking")

	rootCmd.AddCommand(runCmd, frontierCmd, valueCmd, minimalsCmd, representCmd, fetchCmd, exportCmd, configCmd)
}

// loadConfig reads the config file and environment, then applies any flags given on the command line.
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flags.configPath)
	if err != nil {
		return err
	}

	changed := cmd.Flags().Changed
	if changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if changed("max-vertices") {
		cfg.MaxVertices = flags.maxVerts
	}
	if changed("invariant") {
		cfg.Invariant = flags.invariant
	}
	if changed("catalog") {
		cfg.Catalog = flags.catalogPath
	}
	if changed("metrics-addr") {
		cfg.MetricsAddr = flags.metricsAddr
	}
	if changed("every") {
		cfg.CheckpointEvery = flags.every
	}
	return cfg.Validate()
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// openStore opens and loads the store.  Lost artifacts are logged and leave their strata cold.
func openStore() (*stratum.Store, stratum.LoadReport, error) {
	st, err := stratum.Open(stratum.Opts{
		Dir:         cfg.DataDir,
		MaxVertices: cfg.MaxVertices,
	})
	if err != nil {
		return nil, stratum.LoadReport{}, err
	}
	report, err := st.Load()
	if err != nil {
		klog.Warningf("load: %v", err)
	}
	return st, report, nil
}

func openCatalog(readOnly bool) (*catalog.Catalog, error) {
	if cfg.Catalog == "" {
		return nil, errors.Wrap(qbound.ErrBadCatalogParam, "no catalog configured (set --catalog or QBOUND_CATALOG)")
	}
	return catalog.OpenCatalog(catalog.CatalogOpts{
		DbPathName: cfg.Catalog,
		ReadOnly:   readOnly,
	})
}

func newCache() *seed.Cache {
	return seed.NewCache(seed.NewFetcher(cfg.FetcherOpts()))
}

// openSource returns the lookup source named by --source and a func to release it.
func openSource() (query.Source, func(), error) {
	switch flags.source {
	case "store":
		st, _, err := openStore()
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case "catalog":
		cat, err := openCatalog(true)
		if err != nil {
			return nil, nil, err
		}
		return cat, func() { cat.Close() }, nil
	case "seed":
		return newCache(), func() {}, nil
	}
	return nil, nil, errors.Errorf("unknown source %q (want store, catalog, or seed)", flags.source)
}

func writeLine(out io.Writer, item qbound.StringWriter, opts qbound.PrintOpts) {
	item.WriteAsString(out, opts)
	fmt.Fprintln(out)
}

func parseGraph(arg string) (*graph.Graph, error) {
	if flags.matrix {
		return graph.ParseMatrix(arg)
	}
	return graph.Parse(arg)
}

func runPasses(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				klog.Errorf("%v", err)
			}
		}()
	}

	st, err := stratum.Open(stratum.Opts{
		Dir:         cfg.DataDir,
		MaxVertices: cfg.MaxVertices,
	})
	if err != nil {
		return err
	}
	oracle, err := cfg.Oracle(newCache())
	if err != nil {
		return err
	}
	if closer, ok := oracle.(io.Closer); ok {
		defer closer.Close()
	}
	eng, err := engine.New(engine.Opts{
		Store:   st,
		Oracle:  oracle,
		Cadence: stratum.CadenceOpts{Every: cfg.CheckpointEvery},
	})
	if err != nil {
		return err
	}

	report, err := eng.Run(ctx)
	writeRunReport(cmd.OutOrStdout(), report)
	if errors.Is(err, context.Canceled) {
		klog.Warningf("run interrupted; rerun to resume from the last checkpoint")
	}
	if err != nil {
		return err
	}

	if cfg.Catalog != "" {
		cat, err := openCatalog(false)
		if err != nil {
			return err
		}
		defer cat.Close()
		return cat.ImportStore(ctx, st)
	}
	return nil
}

func writeRunReport(out io.Writer, report engine.RunReport) {
	fmt.Fprintf(out, "resumed pass 1 at %v, pass 2 at %v\n", report.Pass1From, report.Pass2From)
	fmt.Fprintf(out, "propagated %s, classified %s, relaxations %s, anomalies %d, checkpoints %d\n",
		humanize.Comma(report.Stats.Propagated),
		humanize.Comma(report.Stats.Classified),
		humanize.Comma(report.Stats.Relaxations),
		report.Stats.Anomalies,
		report.Stats.Checkpoints)
	for _, lost := range report.Load.Lost {
		fmt.Fprintf(out, "LOST %v %v: %v\n", lost.Family, lost.Stratum, lost.Err)
	}
	fmt.Fprintf(out, "%d minimal graphs, %v elapsed\n", report.NumMinimals, report.Elapsed.Round(time.Millisecond))
}

func runFrontier(cmd *cobra.Command, args []string) error {
	_, report, err := openStore()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	for _, fam := range qbound.StratumFamilies {
		if s, found := report.Frontiers[fam]; found {
			fmt.Fprintf(out, "%-10s %v\n", fam, s)
		} else {
			fmt.Fprintf(out, "%-10s cold\n", fam)
		}
	}
	fmt.Fprintf(out, "%-10s %v\n", qbound.FamilyMinimals, report.Registry)

	outcomes := make([]stratum.ReloadOutcome, 0, len(report.Outcomes))
	for outcome := range report.Outcomes {
		outcomes = append(outcomes, outcome)
	}
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i] < outcomes[j] })
	for _, outcome := range outcomes {
		fmt.Fprintf(out, "reloaded from %-8v %d\n", outcome, report.Outcomes[outcome])
	}
	for _, lost := range report.Lost {
		fmt.Fprintf(out, "LOST %v %v: %v\n", lost.Family, lost.Stratum, lost.Err)
	}
	return nil
}

func runValue(cmd *cobra.Command, args []string) error {
	X, err := parseGraph(args[0])
	if err != nil {
		return err
	}
	src, release, err := openSource()
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signalContext(cmd)
	defer stop()
	v, err := query.Value(ctx, src, X)
	if err != nil {
		return err
	}
	writeLine(cmd.OutOrStdout(), X.Identity(), qbound.PrintOpts{Value: v})
	return nil
}

func runMinimals(cmd *cobra.Command, args []string) error {
	src, release, err := openSource()
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signalContext(cmd)
	defer stop()
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		ks, err := src.MinimalValues(ctx)
		if err != nil {
			return err
		}
		for _, k := range ks {
			keys, err := query.Minimals(ctx, src, k)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "value %3d: %s minimal graphs\n", k, humanize.Comma(int64(len(keys))))
		}
		return nil
	}

	k, err := strconv.Atoi(args[0])
	if err != nil {
		return errors.Errorf("value %q is not an integer", args[0])
	}
	keys, err := query.Minimals(ctx, src, k)
	if err != nil {
		return err
	}
	if len(keys) > cfg.ConfirmAbove && !flags.yes {
		return errors.Errorf("%s minimal graphs have value %d; rerun with --yes to list them",
			humanize.Comma(int64(len(keys))), k)
	}
	return query.WriteMinimals(out, keys, qbound.PrintOpts{Edges: true, Value: -1})
}

func runRepresent(cmd *cobra.Command, args []string) error {
	X, err := parseGraph(args[0])
	if err != nil {
		return err
	}
	src, release, err := openSource()
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signalContext(cmd)
	defer stop()
	rep, err := query.Representative(ctx, src, X)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	writeLine(out, X, qbound.PrintOpts{Label: "graph          ", Edges: true, Value: -1})
	writeLine(out, rep, qbound.PrintOpts{Label: "representative ", Edges: true, Value: -1})
	writeLine(out, rep.Identity(), qbound.PrintOpts{Label: "               ", Value: -1})
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	cat, err := openCatalog(false)
	if err != nil {
		return err
	}
	defer cat.Close()

	fetcher := seed.NewFetcher(cfg.FetcherOpts())
	tables, err := fetcher.FetchAll(ctx, cfg.MaxVertices)
	if err != nil {
		return err
	}
	for s, table := range tables {
		if err := cat.ImportStratum(s, table); err != nil {
			return errors.Wrapf(err, "importing %v", s)
		}
	}
	reg, err := fetcher.FetchMinimals(ctx)
	if err != nil {
		return err
	}
	if err := cat.ImportMinimals(reg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d strata and %s minimal graphs into %s\n",
		len(tables), humanize.Comma(cat.NumMinimals()), cfg.Catalog)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	st, _, err := openStore()
	if err != nil {
		return err
	}
	cat, err := openCatalog(false)
	if err != nil {
		return err
	}
	defer cat.Close()
	return cat.ImportStore(ctx, st)
}

func runConfig(cmd *cobra.Command, args []string) error {
	text, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(text)
	return err
}
