package webpconv

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Report is the outcome of ConvertAll. Results and Failures are both in
// input order.
type Report struct {
	Results  []*Result
	Failures []*ConversionError

	// Byte totals over successful conversions only.
	TotalOriginal int64
	TotalEncoded  int64

	// Skipped counts inputs never converted because the context was done.
	Skipped int
}

// Succeeded returns the number of successful conversions.
func (r *Report) Succeeded() int { return len(r.Results) }

// Failed returns the number of failed conversions.
func (r *Report) Failed() int { return len(r.Failures) }

// Reduction returns the aggregate size reduction in percent. It is 0 when
// nothing was converted.
func (r *Report) Reduction() float64 {
	return reduction(r.TotalOriginal, r.TotalEncoded)
}

// FormatCounts counts successes per original format.
func (r *Report) FormatCounts() map[string]int {
	counts := make(map[string]int)
	for _, res := range r.Results {
		counts[res.Stats.Format]++
	}
	return counts
}

type outcome struct {
	res     *Result
	err     error
	skipped bool
}

// ConvertAll converts srcs concurrently with one policy and folds the
// outcomes into a Report in input order. A failed item is recorded in
// Report.Failures and does not stop the batch.
//
// When ctx is done before every item has started, the remaining items are
// counted in Report.Skipped and ConvertAll returns the partial report
// together with ctx.Err().
func (c *Converter) ConvertAll(ctx context.Context, srcs []Source, p Policy) (*Report, error) {
	outcomes := make([]outcome, len(srcs))

	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, src := range srcs {
		if ctx.Err() != nil {
			outcomes[i].skipped = true
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i].skipped = true
				return nil
			}
			res, err := c.Convert(ctx, src, p)
			outcomes[i] = outcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{}
	for _, o := range outcomes {
		switch {
		case o.skipped:
			report.Skipped++
		case o.err != nil:
			var ce *ConversionError
			if !errors.As(o.err, &ce) {
				// Convert only returns bare errors for a done context.
				report.Skipped++
				continue
			}
			c.log.Warn("conversion failed", "file", ce.Filename, "err", ce.Err)
			report.Failures = append(report.Failures, ce)
		default:
			report.Results = append(report.Results, o.res)
			report.TotalOriginal += o.res.Stats.OriginalSize
			report.TotalEncoded += o.res.Stats.EncodedSize
		}
	}
	if report.Skipped > 0 {
		return report, ctx.Err()
	}
	return report, nil
}
