package crawler

import (
	"context"
	"fmt"
)

// DetectResult reports how a target's entry page behaved under the guard.
type DetectResult struct {
	Target     string `json:"target"`
	URL        string `json:"url"`
	Passed     bool   `json:"passed"`
	Encounters int    `json:"encounters"`
	Error      string `json:"error,omitempty"`
}

// Detect opens each target's entry URL in one shared session with only the
// blocking guard active. Targets without an entry URL are reported, not
// resolved.
func (c *Controller) Detect(ctx context.Context, targets []*Target) ([]DetectResult, error) {
	sess, err := c.renderer.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	log := c.log.WithContext(ctx)
	results := make([]DetectResult, 0, len(targets))
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		r := DetectResult{Target: t.Name, URL: t.BaseURL}
		if t.BaseURL == "" {
			r.Error = "no entry url"
			results = append(results, r)
			continue
		}

		before := c.guard.Encounters()
		var navErr error
		r.Passed = c.guard.Visit(ctx, sess, func(ctx context.Context) error {
			_, navErr = sess.Navigate(ctx, t.BaseURL, c.cfg.NavigationTimeout)
			return navErr
		})
		r.Encounters = c.guard.Encounters() - before
		if navErr != nil {
			r.Error = navErr.Error()
		}

		log.Info("Detection checked",
			"target", t.Name,
			"passed", r.Passed,
			"encounters", r.Encounters,
		)
		results = append(results, r)
	}
	return results, nil
}
