package collab

import (
	"log"
	"time"
)

// Reaper is the single background task enforcing every time-based
// deletion policy: expired sessions, stale presence entries and old
// update records. It locks one session at a time, so a sweep never
// stalls in-flight joins or updates on other sessions.
type Reaper struct {
	store           *Store
	interval        time.Duration
	presenceWindow  time.Duration
	updateRetention time.Duration
	stopChan        chan struct{}
	now             func() time.Time
}

func NewReaper(store *Store, interval, presenceWindow, updateRetention time.Duration) *Reaper {
	if presenceWindow <= 0 {
		presenceWindow = DefaultPresenceWindow
	}
	if updateRetention <= 0 {
		updateRetention = DefaultUpdateRetention
	}
	return &Reaper{
		store:           store,
		interval:        interval,
		presenceWindow:  presenceWindow,
		updateRetention: updateRetention,
		stopChan:        make(chan struct{}),
		now:             time.Now,
	}
}

func (r *Reaper) Start() {
	go r.loop()
	log.Printf("Session reaper started (interval %s)", r.interval)
}

func (r *Reaper) Stop() {
	select {
	case <-r.stopChan:
		return
	default:
		close(r.stopChan)
	}
}

func (r *Reaper) loop() {
	// Sweep on startup as well as by interval.
	r.Sweep()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep runs one pass immediately. Exposed so callers with a simulated
// clock can drive sweeps directly.
func (r *Reaper) Sweep() {
	purged := r.store.sweep(r.now(), r.presenceWindow, r.updateRetention)
	if purged > 0 {
		log.Printf("Reaper purged %d expired session(s)", purged)
	}
}
