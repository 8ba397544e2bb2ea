package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/RateKey/internal/logging"
	"github.com/ChrisMcGann/RateKey/internal/metrics"
	"github.com/ChrisMcGann/RateKey/pkg/core"
	"github.com/ChrisMcGann/RateKey/pkg/grouping"
	"github.com/ChrisMcGann/RateKey/pkg/result"
)

// processGrouped runs one engine invocation per bucket of peptides that share
// a missing-column pattern and concatenates the results in bucket order. No
// master run is made; the heavy water file of each bucket is generated from
// the spreadsheet header.
func (p *Pipeline) processGrouped(ctx context.Context, r *run) (*result.Table, error) {
	buckets := grouping.Group(r.Dataset.Peptides, p.opts.ToleranceMultiplier)
	r.logger.Info("peptides grouped", "buckets", len(buckets), "affected", len(r.Missing))

	rows := make([][]core.ResultRow, len(buckets))
	serialized := make([]*grouping.Dataset, len(buckets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.PeptideWorkers)

	for i, b := range buckets {
		g.Go(func() error {
			ds, err := grouping.Serialize(r.Workdir, uuid.NewString(), r.Dataset, b, p.opts.RemoveNA)
			if err != nil {
				return fmt.Errorf("failed to serialize bucket %d: %w", i, err)
			}

			resultPath, err := p.runEngine(gctx, r, metrics.KindBucket, ds.HeavyWaterPath, ds.SpreadsheetPath)
			if err != nil {
				return fmt.Errorf("bucket %d run failed: %w", i, err)
			}

			tbl, err := result.ReadFile(resultPath)
			if err != nil {
				return fmt.Errorf("failed to read bucket %d result: %w", i, err)
			}
			for j := range tbl.Rows {
				tbl.Rows[j].SamplesOmitted = ds.SamplesOmitted
			}

			rows[i], serialized[i] = tbl.Rows, ds
			r.logger.Debug("bucket complete",
				"bucket", i,
				"peptides", len(ds.Peptides),
				"rows", len(tbl.Rows),
				logging.FieldSamplesOmitted, ds.SamplesOmitted,
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []core.ResultRow
	var omissions []Omission
	for i, ds := range serialized {
		all = append(all, rows[i]...)
		if ds.SamplesOmitted == 0 {
			continue
		}
		for _, name := range ds.Peptides {
			omissions = append(omissions, Omission{Peptide: name, Columns: ds.Columns, SamplesOmitted: ds.SamplesOmitted})
			p.opts.Metrics.PeptidePatched(ds.SamplesOmitted)
		}
	}
	r.Omissions = omissions

	return result.NewTable(all), nil
}
