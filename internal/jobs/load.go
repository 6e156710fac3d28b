package jobs

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"tweetnorm/internal/config"
	"tweetnorm/internal/ingest"
	"tweetnorm/internal/logging"
	"tweetnorm/internal/metrics"
	"tweetnorm/internal/store"
)

// OpenStore connects to the configured database.
func OpenStore(ctx context.Context, cfg config.Config) (*store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN,
		store.WithMaxOpenConns(cfg.Storage.MaxOpenConns),
		store.WithRetryPolicy(store.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseBackoff: cfg.Retry.BaseBackoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
		}))
}

// RunMigrate creates the schema and views.
func RunMigrate(ctx context.Context, cfg config.Config) error {
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Migrate(ctx)
}

// RunLoad migrates the database, loads inputs and refreshes the tag views.
// The report is returned whenever the load started, even on error.
func RunLoad(ctx context.Context, cfg config.Config, inputs []string) (*ingest.Report, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no inputs")
	}
	start := time.Now()
	metrics.IngestRuns.Inc()
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		metrics.IngestErrors.Inc()
		return nil, err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		metrics.IngestErrors.Inc()
		return nil, err
	}

	ctrl := ingest.NewController(st, ingest.Options{
		BatchSize:     cfg.Load.BatchSize,
		Workers:       cfg.Load.WorkerCount(),
		BatchTimeout:  cfg.Load.BatchTimeout,
		ProgressEvery: cfg.Load.ProgressEvery,
		ReverseInputs: cfg.Load.ReverseInputs,
		RateLimit:     cfg.Load.RateLimit,
	})
	rep, err := ctrl.Run(ctx, inputs)
	if err != nil {
		metrics.IngestErrors.Inc()
		return rep, err
	}
	if err := st.RefreshViews(ctx); err != nil {
		metrics.IngestErrors.Inc()
		logging.Error("refresh_views_error", map[string]any{"error": err.Error()})
		return rep, err
	}
	fields := map[string]any{
		"run_id":         rep.RunID,
		"dialect":        st.Dialect().Name,
		"inputs":         len(inputs),
		"skip_reasons":   rep.SkipReasons(),
		"top_rejections": rep.TopRejections(3),
		"elapsed":        time.Since(start).String(),
	}
	if counts, err := st.TableCounts(ctx); err == nil {
		fields["tables"] = counts
	}
	logging.Info("load_once", fields)
	metrics.ObserveIngestDuration(start)
	return rep, nil
}

// TagViews is what the views command prints.
type TagViews struct {
	Top   []store.TagTotal `json:"top"`
	Pairs []store.TagPair  `json:"pairs,omitempty"`
}

// RunViews refreshes the tag views and reads the ranking, plus the
// co-occurrences of tag when it is set.
func RunViews(ctx context.Context, cfg config.Config, tag string, limit int) (TagViews, error) {
	var out TagViews
	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return out, err
	}
	defer st.Close()
	if err := st.RefreshViews(ctx); err != nil {
		return out, err
	}
	if out.Top, err = st.TopTags(ctx, limit); err != nil {
		return out, err
	}
	if tag != "" {
		if out.Pairs, err = st.Cooccurring(ctx, tag, limit); err != nil {
			return out, err
		}
	}
	return out, nil
}
