package main

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/petmar2017/wealth-advisor-scraper/internal/crawler"
)

// progressObserver advances a progress bar as pairs finish.
type progressObserver struct {
	bar     *progressbar.ProgressBar
	records int
}

func newProgressObserver(total int, w io.Writer) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Crawling"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		),
	}
}

func (p *progressObserver) PairStarted(ctx context.Context, runID string, target string, filter crawler.Filter) {
	p.bar.Describe(fmt.Sprintf("%s / %s (%d records)", target, filter, p.records))
}

func (p *progressObserver) PairFinished(ctx context.Context, runID string, result crawler.PairResult) {
	p.records += result.RecordCount
	p.bar.Describe(fmt.Sprintf("%s / %s %s (%d records)", result.Target, result.Filter, result.Status, p.records))
	_ = p.bar.Add(1)
}
