package quota

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"

	"makequeue-backend/config"
)

// Reloader keeps a Policy's table in sync with the quota file, out of band of
// request handling. Reloads happen on a timer and, when enabled, on file
// write events. A failed reload keeps the previous table.
type Reloader struct {
	cfg    *config.QuotaConfig
	policy *Policy
}

// NewReloader creates a reloader for the given policy.
func NewReloader(cfg *config.QuotaConfig, policy *Policy) *Reloader {
	return &Reloader{cfg: cfg, policy: policy}
}

// Run blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) {
	log.Printf("Starting quota table reloader for %s...", r.cfg.Path)

	var fileEvents chan fsnotify.Event
	if r.cfg.WatchFileEvents {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			log.Printf("Warning: could not create quota file watcher: %v. Falling back to timer-only reloads.", err)
		} else if err := watcher.Add(r.cfg.Path); err != nil {
			log.Printf("Warning: could not watch quota file %s: %v. Falling back to timer-only reloads.", r.cfg.Path, err)
			watcher.Close()
		} else {
			defer watcher.Close()
			fileEvents = make(chan fsnotify.Event)
			go func() {
				for {
					select {
					case ev, ok := <-watcher.Events:
						if !ok {
							return
						}
						if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) {
							fileEvents <- ev
						}
					case err, ok := <-watcher.Errors:
						if !ok {
							return
						}
						log.Printf("Quota file watcher error: %v", err)
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	timer := time.NewTimer(r.cfg.Reload)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Quota table reloader shutting down.")
			return
		case <-timer.C:
			r.ReloadOnce()
			timer.Reset(r.cfg.Reload)
		case <-fileEvents:
			r.ReloadOnce()
		}
	}
}

// ReloadOnce loads the table from disk and swaps it in.
func (r *Reloader) ReloadOnce() {
	table, err := LoadTable(r.cfg.Path)
	if err != nil {
		log.Printf("Failed to reload quota table from %s: %v. Keeping previous table.", r.cfg.Path, err)
		return
	}
	r.policy.Swap(table)
	log.Printf("Quota table reloaded from %s (%d roles)", r.cfg.Path, len(table.Roles))
}
