package admission

import (
	"log"
	"sync"
	"time"
)

// FuseState represents the state of a per-skill fuse.
type FuseState int

const (
	// FuseClosed - normal operation, calls to the skill are allowed.
	FuseClosed FuseState = iota
	// FuseOpen - the skill melted, calls are refused until reset or decay.
	FuseOpen
)

// String returns a human-readable representation of the fuse state.
func (s FuseState) String() string {
	switch s {
	case FuseClosed:
		return "closed"
	case FuseOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Default fuse tunables. The exact window and threshold are deployment
// configuration, not a hard contract.
const (
	// DefaultFuseThreshold is the number of failures inside FuseWindow that
	// open the fuse.
	DefaultFuseThreshold = 3
	// DefaultFuseWindow is how long a recorded failure counts toward the
	// threshold.
	DefaultFuseWindow = time.Minute
	// DefaultFuseCooldown is how long an open fuse stays open before it
	// closes on its own.
	DefaultFuseCooldown = time.Minute
)

// FuseConfig configures a FuseBoard.
type FuseConfig struct {
	// Threshold is the failure count that opens a fuse.
	Threshold int
	// Window is how long failures count toward the threshold.
	Window time.Duration
	// Cooldown is how long an open fuse stays open before decaying closed.
	Cooldown time.Duration
}

// withDefaults fills zero fields with the default tunables.
func (c FuseConfig) withDefaults() FuseConfig {
	if c.Threshold < 1 {
		c.Threshold = DefaultFuseThreshold
	}
	if c.Window <= 0 {
		c.Window = DefaultFuseWindow
	}
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultFuseCooldown
	}
	return c
}

// fuse is the per-skill breaker state. Guarded by the board's mutex.
type fuse struct {
	state    FuseState
	failures []time.Time
	openedAt time.Time
}

// FuseBoard tracks one fuse per skill name. A fuse opens after Threshold
// failures inside Window and closes again via Reset or after Cooldown
// elapses. The board is safe for concurrent use.
type FuseBoard struct {
	cfg   FuseConfig
	fuses map[string]*fuse
	mu    sync.RWMutex
	// now is the time source, swappable in tests.
	now func() time.Time
}

// NewFuseBoard creates a FuseBoard with the given tunables.
func NewFuseBoard(cfg FuseConfig) *FuseBoard {
	return &FuseBoard{
		cfg:   cfg.withDefaults(),
		fuses: make(map[string]*fuse),
		now:   time.Now,
	}
}

// Install registers a fuse for the skill if one does not exist yet.
// Installing an already-registered skill is a no-op.
func (b *FuseBoard) Install(skill string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.install(skill)
}

// install registers a fuse. Must be called with the write lock held.
func (b *FuseBoard) install(skill string) *fuse {
	f, ok := b.fuses[skill]
	if !ok {
		f = &fuse{state: FuseClosed}
		b.fuses[skill] = f
	}
	return f
}

// Check reports whether a call to the skill is admitted. Skills are
// installed automatically on first use. An open fuse yields a level-1
// Rejection until Reset is called or the cooldown elapses.
func (b *FuseBoard) Check(skill string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.install(skill)
	now := b.now()

	if f.state == FuseOpen {
		if now.Sub(f.openedAt) >= b.cfg.Cooldown {
			// Cooldown elapsed, the fuse decays closed.
			f.state = FuseClosed
			f.failures = nil
			log.Printf("[admission] fuse for skill %q closed after cooldown", skill)
		} else {
			f.failures = pruneFailures(f.failures, now, b.cfg.Window)
			return &Rejection{
				Level: LevelSkillFuse,
				Scope: ScopeSkill,
				Skill: skill,
				Used:  len(f.failures),
				Max:   b.cfg.Threshold,
			}
		}
	}
	return nil
}

// pruneFailures drops failures older than the window, in place.
func pruneFailures(failures []time.Time, now time.Time, window time.Duration) []time.Time {
	kept := failures[:0]
	for _, ts := range failures {
		if now.Sub(ts) < window {
			kept = append(kept, ts)
		}
	}
	return kept
}

// RecordFailure counts a failed call against the skill's fuse. Reaching the
// threshold within the window opens the fuse.
func (b *FuseBoard) RecordFailure(skill string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.install(skill)
	now := b.now()

	// Failures older than the window no longer count toward the threshold.
	f.failures = append(pruneFailures(f.failures, now, b.cfg.Window), now)

	if f.state == FuseClosed && len(f.failures) >= b.cfg.Threshold {
		f.state = FuseOpen
		f.openedAt = now
		log.Printf("[admission] fuse opened for skill %q (%d failures in %s)",
			skill, len(f.failures), b.cfg.Window)
	}
}

// RecordSuccess is a hook for breakers that track successes. The failure-count
// fuse ignores it; it exists so callers can report both outcomes uniformly.
func (b *FuseBoard) RecordSuccess(skill string) {}

// Reset closes the skill's fuse and clears its failure history.
func (b *FuseBoard) Reset(skill string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f := b.install(skill)
	f.state = FuseClosed
	f.failures = nil
}

// State returns the current state of the skill's fuse without installing it.
// Unknown skills report FuseClosed.
func (b *FuseBoard) State(skill string) FuseState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, ok := b.fuses[skill]
	if !ok {
		return FuseClosed
	}
	return f.state
}
