package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-metagraph/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/config"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/metrics"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/models"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/repositories"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/services/crawler"
	"github.com/ekaya-inc/ekaya-metagraph/pkg/services/graph"
)

type crawlFlags struct {
	all    bool
	dryRun bool
	asJSON bool
}

// crawlOutcome is what one source's crawl produced.
type crawlOutcome struct {
	Result  *models.CrawlResult `json:"result"`
	Written *graph.WriteSummary `json:"written,omitempty"`
	Error   string              `json:"error,omitempty"`
}

func (o *crawlOutcome) failed() bool {
	return o.Error != "" || !o.Result.Reachable
}

func newCrawlCmd(a *app) *cobra.Command {
	var flags crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl [source-id]",
		Short: "Crawl sources and write their structure into the graph store",
		Long: `Crawl one source, or every source in the sources file with --all.
Each crawl degrades gracefully: probes that fail become warnings in the
printed envelope. Unreachable sources are reported and never written.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if flags.all && len(args) > 0 {
				return errors.New("give a source id or --all, not both")
			}
			if !flags.all && len(args) != 1 {
				return errors.New("a source id is required (or --all)")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrawl(cmd.Context(), cmd.OutOrStdout(), args, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "crawl every configured source")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "crawl without writing to the graph store")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "print crawl envelopes as JSON")
	return cmd
}

func (a *app) runCrawl(ctx context.Context, out io.Writer, args []string, flags crawlFlags) error {
	sources, err := config.LoadSources(a.cfg.SourcesFile)
	if err != nil {
		return err
	}
	targets, err := selectSources(sources, args, flags.all)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewCrawlMetrics(reg)

	crawlSvc := crawler.NewService(datasource.NewAdapterFactory(a.logger), m, a.logger)

	var graphSvc graph.Service
	if !flags.dryRun {
		db, err := a.openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close()
		graphSvc = graph.NewService(db, repositories.NewGraphRepository(), m, a.logger)
	}

	opts := crawler.Options{
		SampleSize:                a.cfg.Crawl.SampleSize,
		ProfileSampleSize:         a.cfg.Crawl.ProfileSampleSize,
		DocumentProfileSampleSize: a.cfg.Crawl.DocumentProfileSampleSize,
	}

	outcomes := make([]*crawlOutcome, len(targets))
	var g errgroup.Group
	g.SetLimit(a.cfg.Crawl.Concurrency)
	for i, src := range targets {
		g.Go(func() error {
			outcomes[i] = a.crawlOne(ctx, crawlSvc, graphSvc, src, opts)
			return nil
		})
	}
	_ = g.Wait()

	if err := printOutcomes(out, outcomes, flags.asJSON); err != nil {
		return err
	}

	if a.cfg.Metrics.PushURL != "" {
		if err := metrics.Push(ctx, a.cfg.Metrics.PushURL, a.cfg.Metrics.Job, reg); err != nil {
			a.logger.Warn("Failed to push metrics", zap.Error(err))
		}
	}

	failed := 0
	for _, o := range outcomes {
		if o.failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed", failed, len(outcomes))
	}
	return nil
}

// crawlOne crawls one source under the configured deadline and, when a
// graph service is given, materializes the result.
func (a *app) crawlOne(ctx context.Context, crawlSvc crawler.Service, graphSvc graph.Service, src *models.Source, opts crawler.Options) *crawlOutcome {
	crawlCtx, cancel := context.WithTimeout(ctx, a.cfg.Crawl.Timeout)
	defer cancel()

	outcome := &crawlOutcome{Result: crawlSvc.Crawl(crawlCtx, src, opts)}
	if graphSvc == nil || !outcome.Result.Reachable {
		return outcome
	}

	summary, err := graphSvc.Materialize(ctx, outcome.Result)
	if err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Written = summary
	return outcome
}

func selectSources(sources []*models.Source, args []string, all bool) ([]*models.Source, error) {
	if all {
		if len(sources) == 0 {
			return nil, errors.New("no sources configured")
		}
		return sources, nil
	}
	src, err := config.FindSource(sources, args[0])
	if err != nil {
		return nil, err
	}
	return []*models.Source{src}, nil
}

func printOutcomes(out io.Writer, outcomes []*crawlOutcome, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	}

	for _, o := range outcomes {
		r := o.Result
		status := "ok"
		switch {
		case !r.Reachable:
			status = "unreachable"
		case o.Error != "":
			status = "write failed"
		}
		fmt.Fprintf(out, "%s (%s): %s, %s, %d warnings\n",
			r.SourceID, r.Kind, status, describeSnapshot(r.Data), len(r.Warnings))

		for _, w := range r.Warnings {
			fmt.Fprintf(out, "  [%s] %s: %s\n", w.Level, w.Feature, w.Message)
		}
		if o.Written != nil {
			fmt.Fprintf(out, "  wrote %d nodes, %d edges, %d provenance records\n",
				o.Written.Nodes, o.Written.Edges, o.Written.Provenance)
		}
		if o.Error != "" {
			fmt.Fprintf(out, "  error: %s\n", o.Error)
		}
	}
	return nil
}

func describeSnapshot(snap models.Snapshot) string {
	switch s := snap.(type) {
	case *models.RelationalSnapshot:
		return fmt.Sprintf("%d tables, %d foreign keys", len(s.Tables), len(s.ForeignKeys))
	case *models.DocumentSnapshot:
		return fmt.Sprintf("%d collections, %d references", len(s.Collections), len(s.References))
	}
	return "no data"
}
