package market

import (
	"context"
	"fmt"

	"stockenv/internal/logger"
)

// Download pages series from src over [start, end] (Unix ms) into store and
// returns the number of candles written. When the store already holds an
// unbroken run that covers start, paging resumes at its last bar, which is
// fetched again in case it was still open when stored.
func Download(ctx context.Context, src CandleSource, store *Store, series Series, start, end int64) (int, error) {
	if src == nil || store == nil {
		return 0, fmt.Errorf("download: source and store are required")
	}
	if start <= 0 || end <= start {
		return 0, fmt.Errorf("download: invalid range %d..%d", start, end)
	}
	cov, err := store.Coverage(ctx, series)
	if err != nil {
		return 0, err
	}
	cursor := start
	if cov.Contiguous() && cov.First <= start && cov.Last > start {
		cursor = cov.Last
		logger.Infof("[market] %s 本地已覆盖至 %d，从该处续传", series, cov.Last)
	}

	total := 0
	for cursor <= end {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := src.Fetch(ctx, FetchRequest{
			Symbol:   series.Symbol,
			Interval: series.Interval,
			Start:    cursor,
			End:      end,
			Limit:    binanceMaxLimit,
		})
		if err != nil {
			return total, fmt.Errorf("download %s from %s: %w", series, src.Name(), err)
		}
		if len(page) == 0 {
			break
		}
		n, err := store.Put(ctx, series, page)
		if err != nil {
			return total, err
		}
		total += n
		last := page[len(page)-1].OpenTime
		if last < cursor {
			break
		}
		cursor = last + 1
		logger.Debugf("[market] %s 已下载 %d 根，游标=%d", series, total, cursor)
	}
	return total, nil
}
