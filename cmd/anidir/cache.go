package main

import (
	"os"
	"time"

	"github.com/John-Robertt/anidir/internal/config"
	"github.com/John-Robertt/anidir/internal/infra/cache"
)

type cacheReport struct {
	Path      string     `json:"path"`
	Action    string     `json:"action"`
	Entries   int        `json:"entries"`
	Expired   int        `json:"expired"`
	Removed   int        `json:"removed"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	SizeBytes int64      `json:"size_bytes"`
}

// cache 执行 --cache-info/--cache-prune/--cache-clear。
// dry-run 下 prune/clear 只统计将被删除的数量，不落盘。
func (c *cli) cache(eff config.EffectiveConfig, action string) (report, error) {
	rep := report{Command: "cache", TargetDir: eff.TargetDir, DryRun: eff.DryRun}

	opts := []cache.Option{cache.WithReadOnly(eff.DryRun)}
	if c.now != nil {
		opts = append(opts, cache.WithClock(c.now))
	}
	store := cache.Load(cache.PathFor(eff.TargetDir), eff.CacheExpiryDays, opts...)
	cr := &cacheReport{Path: store.Path(), Action: action}
	rep.Cache = cr

	switch action {
	case "prune":
		cr.Removed = store.PruneExpired()
	case "clear":
		cr.Removed = store.Clear()
	}
	if action != "info" && !eff.DryRun {
		if err := store.Save(); err != nil {
			return rep, err
		}
	}

	st := store.Stats()
	cr.Entries, cr.Expired = st.Total, st.Expired
	if !st.Oldest.IsZero() {
		oldest := st.Oldest
		cr.Oldest = &oldest
	}
	if fi, err := os.Stat(cr.Path); err == nil {
		cr.SizeBytes = fi.Size()
	}
	return rep, nil
}
