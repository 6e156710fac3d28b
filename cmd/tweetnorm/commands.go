package main

import (
	"io"

	"github.com/jedib0t/go-pretty/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"tweetnorm/internal/cmdlog"
	"tweetnorm/internal/jobs"
)

type storageFlags struct {
	driver string
	dsn    string
}

func (f *storageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.driver, "driver", "", "database driver (pgx, sqlite)")
	cmd.Flags().StringVar(&f.dsn, "db", "", "database connection string or sqlite path")
}

func (f *storageFlags) apply(g *globals) {
	if f.driver != "" {
		g.cfg.Storage.Driver = f.driver
	}
	if f.dsn != "" {
		g.cfg.Storage.DSN = f.dsn
	}
}

func newMigrateCmd(g *globals) *cobra.Command {
	var sf storageFlags
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the normalized tables and tag views",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf.apply(g)
			ctx, stop := signalContext()
			defer stop()
			return cmdlog.Run("migrate", func() error {
				return jobs.RunMigrate(ctx, g.cfg)
			})
		},
	}
	sf.bind(cmd)
	return cmd
}

func newLoadCmd(g *globals) *cobra.Command {
	var (
		sf        storageFlags
		inputs    []string
		batchSize int
		workers   int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "load [archive...]",
		Short: "Load archived tweets into the database",
		Long: `Reads newline-delimited tweet records from zip, gzip, zstd or plain files
and upserts them into the normalized tables. Rejected rows are reported and
do not fail the run; only a lost connection or a bad configuration does.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf.apply(g)
			if batchSize > 0 {
				g.cfg.Load.BatchSize = batchSize
			}
			if cmd.Flags().Changed("workers") {
				g.cfg.Load.Workers = workers
			}
			all := append(append([]string{}, inputs...), args...)
			if len(all) == 0 {
				return errors.New("load: no inputs given")
			}
			ctx, stop := signalContext()
			defer stop()
			return cmdlog.Run("load", func() error {
				rep, err := jobs.RunLoad(ctx, g.cfg, all)
				if rep != nil {
					out := cmd.OutOrStdout()
					if asJSON {
						if werr := rep.WriteJSON(out); werr != nil && err == nil {
							err = werr
						}
					} else {
						rep.WriteTable(out)
					}
				}
				return err
			})
		},
	}
	sf.bind(cmd)
	cmd.Flags().StringSliceVar(&inputs, "inputs", nil, "input archives")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "records per transaction")
	cmd.Flags().IntVar(&workers, "workers", 0, "decode workers (0 = one per CPU)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newViewsCmd(g *globals) *cobra.Command {
	var (
		sf    storageFlags
		limit int
		tag   string
	)
	cmd := &cobra.Command{
		Use:   "views",
		Short: "Refresh and print the tag ranking and co-occurrences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sf.apply(g)
			if limit <= 0 {
				return errors.Errorf("views: --limit must be positive, got %d", limit)
			}
			ctx, stop := signalContext()
			defer stop()
			return cmdlog.Run("views", func() error {
				v, err := jobs.RunViews(ctx, g.cfg, tag, limit)
				if err != nil {
					return err
				}
				writeViews(cmd.OutOrStdout(), v, tag)
				return nil
			})
		},
	}
	sf.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", 20, "rows to print")
	cmd.Flags().StringVar(&tag, "tag", "", "also list tags used together with this one, e.g. #golang")
	return cmd
}

func writeViews(w io.Writer, v jobs.TagViews, tag string) {
	top := table.NewWriter()
	top.SetOutputMirror(w)
	top.AppendHeader(table.Row{"rank", "tag", "posts"})
	for _, t := range v.Top {
		top.AppendRow(table.Row{t.Rank, t.Tag, t.Total})
	}
	top.Render()
	if tag == "" {
		return
	}
	pairs := table.NewWriter()
	pairs.SetOutputMirror(w)
	pairs.AppendHeader(table.Row{"tag", "with", "posts"})
	for _, p := range v.Pairs {
		pairs.AppendRow(table.Row{p.Tag1, p.Tag2, p.Total})
	}
	pairs.Render()
}
