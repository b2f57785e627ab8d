// Command etl runs the weather pipeline once, or a single stage of it, for
// backfills and debugging. Results are printed as JSON on stdout.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/AbdulWasayUl/go-weather-etl/internal/api"
	"github.com/AbdulWasayUl/go-weather-etl/internal/backup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/config"
	"github.com/AbdulWasayUl/go-weather-etl/internal/db"
	"github.com/AbdulWasayUl/go-weather-etl/internal/extract"
	"github.com/AbdulWasayUl/go-weather-etl/internal/logger"
	"github.com/AbdulWasayUl/go-weather-etl/internal/pipeline"
	"github.com/AbdulWasayUl/go-weather-etl/internal/rollup"
	"github.com/AbdulWasayUl/go-weather-etl/internal/store"
	"github.com/AbdulWasayUl/go-weather-etl/internal/transform"
	"github.com/AbdulWasayUl/go-weather-etl/models"
	"github.com/AbdulWasayUl/go-weather-etl/services/weather"
	"github.com/jszwec/csvutil"
)

type options struct {
	location    string
	mode        string
	path        string
	url         string
	ref         string
	stage       string
	noForecast  bool
	noRollup    bool
	listBackups bool
	statsFrom   string
	statsTo     string
	csv         bool
	pruneBefore string
}

// maintenance reports whether the command only touches stored data.
func (o options) maintenance() bool {
	return o.listBackups || o.statsFrom != "" || o.pruneBefore != ""
}

func main() {
	var o options
	flag.StringVar(&o.location, "location", "", `location as "City,CC" or "City,CC,lat,lon" (default: first configured location)`)
	flag.StringVar(&o.mode, "mode", string(extract.ModeLive), "extraction source: api, file, url or replay")
	flag.StringVar(&o.path, "path", "", "artifact directory or raw JSON file for -mode file")
	flag.StringVar(&o.url, "url", "", "raw JSON URL for -mode url")
	flag.StringVar(&o.ref, "ref", "", "backup artifact ref for -mode replay")
	flag.StringVar(&o.stage, "stage", "all", "stop after this stage: extract, transform or all")
	flag.BoolVar(&o.noForecast, "no-forecast", false, "fetch current conditions only")
	flag.BoolVar(&o.noRollup, "no-rollup", false, "skip the weather_stats refresh after loading")
	flag.BoolVar(&o.listBackups, "list-backups", false, "list backup artifact refs for the location")
	flag.StringVar(&o.statsFrom, "stats-from", "", "recompute weather_stats from this date (YYYY-MM-DD)")
	flag.StringVar(&o.statsTo, "stats-to", "", "recompute weather_stats up to this date (default: -stats-from)")
	flag.BoolVar(&o.csv, "csv", false, "print recomputed stats as CSV instead of JSON")
	flag.StringVar(&o.pruneBefore, "prune-before", "", "delete forecasts collected before this date (YYYY-MM-DD)")
	flag.Parse()

	logger.Init()
	logger.SetOutput(os.Stderr)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg, o); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, o options) error {
	loc, err := resolveLocation(cfg, o.location)
	if err != nil {
		return err
	}

	mode := extract.Mode(o.mode)
	if mode == extract.ModeLive && !o.maintenance() {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateStorage()
	}
	if err != nil {
		return err
	}

	if cfg.BackupStore != config.BackupMongo {
		fs, err := backup.NewFileStore(cfg.BackupDir)
		if err != nil {
			return err
		}
		return runWith(ctx, cfg, o, loc, mode, fs)
	}

	client, err := backup.ConnectMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer backup.DisconnectMongoDB(context.Background(), client)
	ms, err := backup.NewMongoStore(ctx, client, cfg.MongoDB)
	if err != nil {
		return err
	}
	return runWith(ctx, cfg, o, loc, mode, ms)
}

func runWith(ctx context.Context, cfg *config.Config, o options, loc models.Location, mode extract.Mode, backups backup.Store) error {
	if o.listBackups {
		refs, err := backups.List(ctx, loc)
		if err != nil {
			return err
		}
		return printJSON(refs)
	}

	var st *store.Store
	if o.stage == "all" || o.maintenance() {
		database, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := db.RunMigrations(ctx, database); err != nil {
			return err
		}
		st = store.New(database)
	}

	switch {
	case o.pruneBefore != "":
		before, err := time.Parse(rollup.DateLayout, o.pruneBefore)
		if err != nil {
			return fmt.Errorf("-prune-before: %w", err)
		}
		n, err := st.PruneForecasts(ctx, before)
		if err != nil {
			return err
		}
		return printJSON(map[string]int64{"forecasts_deleted": n})
	case o.statsFrom != "":
		return recompute(ctx, st, loc, o)
	}

	httpClient := api.NewClient(api.Options{
		Timeout:    cfg.HTTPTimeout,
		Attempts:   cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
		RateLimit:  models.RateLimitSettings{MaxRequests: cfg.RequestsPerMinute, PerDuration: time.Minute},
	})
	var source extract.Source
	if mode == extract.ModeLive {
		client, err := weather.NewClient(weather.OptionsFromConfig(cfg), httpClient)
		if err != nil {
			return err
		}
		source = client
	}

	ex := extract.New(source, httpClient, backups)
	req := extract.Request{
		Location:     loc,
		Mode:         mode,
		Path:         o.path,
		URL:          o.url,
		Ref:          o.ref,
		WithForecast: !o.noForecast,
	}

	switch o.stage {
	case "extract":
		res, err := ex.Extract(ctx, req)
		if err != nil {
			return err
		}
		return printJSON(res.Metadata)
	case "transform":
		res, err := ex.Extract(ctx, req)
		if err != nil {
			return err
		}
		out, err := transform.Artifact(res.Artifact)
		if err != nil {
			return err
		}
		return printJSON(out)
	case "all":
		sum := pipeline.New(ex, st).WithRollup(!o.noRollup).Run(ctx, req)
		if err := printJSON(sum); err != nil {
			return err
		}
		return sum.Err()
	default:
		return fmt.Errorf("unknown stage %q", o.stage)
	}
}

func recompute(ctx context.Context, st *store.Store, loc models.Location, o options) error {
	from, err := time.Parse(rollup.DateLayout, o.statsFrom)
	if err != nil {
		return fmt.Errorf("-stats-from: %w", err)
	}
	to := from
	if o.statsTo != "" {
		if to, err = time.Parse(rollup.DateLayout, o.statsTo); err != nil {
			return fmt.Errorf("-stats-to: %w", err)
		}
	}

	rec, err := st.FindLocation(ctx, loc.City, loc.Country)
	if err != nil {
		return fmt.Errorf("location %s: %w", loc, err)
	}
	stats, err := st.RecomputeStats(ctx, rec.ID, from, to)
	if err != nil {
		return err
	}

	if o.csv {
		out, err := csvutil.Marshal(stats)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}
	return printJSON(stats)
}

func resolveLocation(cfg *config.Config, s string) (models.Location, error) {
	if s != "" {
		return models.ParseLocation(s)
	}
	if len(cfg.Locations) == 0 {
		return models.DefaultLocation(), nil
	}
	return cfg.Locations[0], nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
