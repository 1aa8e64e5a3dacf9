package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"dumpwatch/internal/app"
	"dumpwatch/internal/config"
	"dumpwatch/internal/dto"
	"dumpwatch/internal/logger"
	"dumpwatch/internal/model"
	"dumpwatch/internal/service/ai"
	"dumpwatch/internal/service/catalog"
	"dumpwatch/internal/service/eventstore"
	"dumpwatch/internal/service/plates"
	"dumpwatch/internal/service/registry"

	"github.com/spf13/cobra"
)

// CLI flags
var (
	cameraFlag  string
	limitFlag   int
	onceFlag    bool
	wardFlag    string
	cityFlag    string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "evidencectl",
	Short: "Operate the dumping evidence tree and catalog",
	Long: `evidencectl works on the same evidence root, catalog and media store as the
server, configured through the same environment variables (or .env file).

Examples:
  evidencectl sync
  evidencectl sync --camera cam_01
  evidencectl list --camera cam_01 --limit 20
  evidencectl plates --once
  evidencectl locations add "MG Road" --ward 12 --city Kochi`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Ingest finished events into the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(cfg *config.Config, cat *app.Catalog, sync *catalog.Synchronizer) error {
			report, err := sync.Sync(cmd.Context(), cameraFlag)
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d, ingested %d, refreshed %d, duplicates %d, skipped %d\n",
				report.Scanned, report.Ingested, report.Refreshed, report.Duplicates, report.Skipped)
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalogued events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(cfg *config.Config, cat *app.Catalog, sync *catalog.Synchronizer) error {
			events, err := sync.ListEvents(cmd.Context(), &dto.EventFilters{Camera: cameraFlag, Limit: limitFlag})
			if err != nil {
				return err
			}
			printEvents(events)
			return nil
		})
	},
}

var platesCmd = &cobra.Command{
	Use:   "plates",
	Short: "Extract plate crops from finished clips",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		log := newLogger()

		detector, err := ai.NewDetectorService(cfg.PlateModelPath, []string{"plate"}, cfg.PlateConfidence, log)
		if err != nil {
			return err
		}
		defer detector.Close()

		opts := plates.DefaultOptions()
		opts.PadX, opts.PadY, opts.ScaleFactor = cfg.PlatePadX, cfg.PlatePadY, cfg.ScaleFactor
		opts.IoUThreshold, opts.DistanceThreshold = cfg.IoUThreshold, cfg.DistanceThreshold
		opts.TrackMaxAge, opts.Interval = cfg.TrackMaxAge, cfg.PlateScanInterval
		pass := plates.NewPass(eventstore.New(cfg.EvidenceRoot), detector, opts, log)

		if !onceFlag {
			pass.Run(cmd.Context())
			return nil
		}
		done, err := pass.ScanOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("processed %d event(s)\n", done)
		return nil
	},
}

var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Show registered cameras",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		reg, err := registry.Load(cfg.CameraRegistry)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CAMERA\tSOURCE\tLOCATION\tWARD\tCITY")
		for _, c := range reg.Cameras() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.CameraID, c.Source, c.Location, c.Ward, c.City)
		}
		return w.Flush()
	},
}

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage legal-disposal locations",
}

var locationsAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Register a legal-disposal location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(cfg *config.Config, cat *app.Catalog, sync *catalog.Synchronizer) error {
			id, err := cat.Locations.Insert(cmd.Context(), &model.LegalLocation{Name: args[0], Ward: wardFlag, City: cityFlag})
			if err != nil {
				return err
			}
			fmt.Printf("location %d: %s\n", id, args[0])
			return nil
		})
	},
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List legal-disposal locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(cmd.Context(), func(cfg *config.Config, cat *app.Catalog, sync *catalog.Synchronizer) error {
			locations, err := cat.Locations.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tWARD\tCITY")
			for _, l := range locations {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", l.ID, l.Name, l.Ward, l.City)
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Log to stderr")

	syncCmd.Flags().StringVar(&cameraFlag, "camera", "", "Only this camera")
	listCmd.Flags().StringVar(&cameraFlag, "camera", "", "Only this camera")
	listCmd.Flags().IntVar(&limitFlag, "limit", 50, "Maximum events to show (0 = all)")
	platesCmd.Flags().BoolVar(&onceFlag, "once", false, "Scan once and exit instead of polling")
	locationsAddCmd.Flags().StringVar(&wardFlag, "ward", "", "Ward of the location")
	locationsAddCmd.Flags().StringVar(&cityFlag, "city", "", "City of the location")

	locationsCmd.AddCommand(locationsAddCmd, locationsListCmd)
	rootCmd.AddCommand(syncCmd, listCmd, platesCmd, camerasCmd, locationsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger() *logger.Logger {
	if verboseFlag {
		return logger.NewWithWriter(os.Stderr)
	}
	return logger.NewNop()
}

// withCatalog opens the configured catalog and media store for one command.
func withCatalog(ctx context.Context, fn func(*config.Config, *app.Catalog, *catalog.Synchronizer) error) error {
	cfg := config.Load()
	log := newLogger()

	cat, err := app.OpenCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	store, err := app.OpenMedia(ctx, cfg)
	if err != nil {
		return err
	}

	// the registry only enriches camera rows, so a missing file is not fatal
	reg, err := registry.Load(cfg.CameraRegistry)
	if err != nil {
		log.Warning("%v", err)
		reg = nil
	}

	sync := catalog.NewSynchronizer(eventstore.New(cfg.EvidenceRoot), cat.Events, cat.Cameras, cat.Locations, store, reg, log)
	return fn(cfg, cat, sync)
}

func printEvents(events []model.DumpingEvent) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCAMERA\tTIME\tACTOR\tPLATES\tCLIP")
	for _, ev := range events {
		clip := ev.VideoKey
		if clip == "" {
			clip = "-"
		}
		plates := fmt.Sprintf("%d", len(ev.Plates))
		if !ev.PlateProcessed {
			plates += " (pending)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.EventID, ev.CameraID, ev.Timestamp.Format(dto.TimestampLayout), ev.Actor, plates, clip)
	}
	w.Flush()
}
