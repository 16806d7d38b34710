// Package updater keeps the tag dataset fresh: it probes the remote origin
// for a new release descriptor, downloads the payload from an ordered mirror
// list with integrity gating, and hands the result to the dataset store over
// the message bus. At most one update is in flight at a time; concurrent
// callers join it (single-flight).
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lixinlkmn2004/tagsyringe/bus"
	"github.com/lixinlkmn2004/tagsyringe/kvstore"
)

// DefaultCooldown is the fixed window during which an unforced CheckVersion
// reuses the memoized result instead of probing the origin. Purely
// time-based, not exponential: a forced check always bypasses it.
const DefaultCooldown = 5 * time.Minute

// Config configures an Updater.
type Config struct {
	// OriginURL is the release-descriptor endpoint of the remote origin.
	OriginURL string
	// Mirrors are the ordered base URLs to download the payload from.
	// The asset name from the descriptor is appended to each.
	Mirrors []string
	// Cooldown overrides DefaultCooldown when positive.
	Cooldown time.Duration
	// UserAgent is sent on every request when non-empty.
	UserAgent string
}

func (c *Config) defaults() {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
}

// Updater checks and downloads dataset releases. Safe for concurrent use.
type Updater struct {
	cfg    Config
	bus    *bus.Bus
	kv     kvstore.Store
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group
	memo  *checkMemo
}

// Option configures an Updater.
type Option func(*Updater)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(u *Updater) { u.logger = l }
}

// WithHTTPClient overrides the HTTP client (tests, custom transports).
func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) { u.client = c }
}

// WithNow overrides the clock (tests).
func WithNow(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// New creates an Updater. b carries the channels the updater serves and
// consumes; kv persists the last CheckResult across restarts.
func New(ctx context.Context, b *bus.Bus, kv kvstore.Store, cfg Config, opts ...Option) *Updater {
	cfg.defaults()
	u := &Updater{
		cfg:    cfg,
		bus:    b,
		kv:     kv,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(u)
	}
	u.memo = newCheckMemo(ctx, kv, u.logger)
	return u
}

// CheckRequest is the payload for the check-database channel.
type CheckRequest struct {
	Force bool
}

// UpdateRequest is the payload for the update-database channel.
type UpdateRequest struct {
	Force   bool
	Recheck bool
}

// AttachBus registers the updater's channels on its bus: check-database and
// update-database.
func (u *Updater) AttachBus() {
	u.bus.On(bus.ChanCheckDatabase, func(ctx context.Context, payload any) (any, error) {
		req, _ := payload.(CheckRequest)
		return u.CheckVersion(ctx, req.Force)
	})
	u.bus.On(bus.ChanUpdateDatabase, func(ctx context.Context, payload any) (any, error) {
		req, _ := payload.(UpdateRequest)
		res, err := u.Update(ctx, req.Force, req.Recheck)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return nil, nil
		}
		return res, nil
	})
}

// Update checks the origin and, when the remote identity differs from the
// locally held one (or force is set), downloads and ingests the new
// snapshot. Returns nil when the dataset was already current. Concurrent
// calls join the in-flight update and observe the same outcome; the
// deduplication is keyed by "any update running", not by content id.
func (u *Updater) Update(ctx context.Context, force, recheck bool) (*CheckResult, error) {
	v, err, _ := u.group.Do("update", func() (any, error) {
		return u.update(ctx, force, recheck)
	})
	if err != nil {
		return nil, err
	}
	res, _ := v.(*CheckResult)
	return res, nil
}

func (u *Updater) update(ctx context.Context, force, recheck bool) (*CheckResult, error) {
	u.progress(ctx, Progress{Phase: PhaseCheck})

	res, err := u.CheckVersion(ctx, force || recheck)
	if err != nil {
		u.progress(ctx, Progress{Phase: PhaseFailed, Err: err.Error()})
		return nil, err
	}

	// The current identity comes over the bus, not from a direct store
	// reference; the updater stays decoupled from the store's layout.
	current := ""
	if reply, err := u.bus.Emit(ctx, bus.ChanGetTagSHA, nil); err == nil {
		current, _ = reply.(string)
	} else {
		u.logger.Warn("updater: current identity unavailable", "error", err)
	}

	if res.ContentID == current && !force {
		u.logger.Debug("updater: dataset already current", "sha", current)
		return nil, nil
	}

	dl, err := u.Download(ctx, res.Descriptor, func(loaded, total int64) {
		u.progress(ctx, Progress{
			Phase: PhaseDownload, Loaded: loaded, Total: total,
			ContentID: res.ContentID,
		})
	})
	if err != nil {
		u.progress(ctx, Progress{Phase: PhaseFailed, ContentID: res.ContentID, Err: err.Error()})
		return nil, err
	}

	u.progress(ctx, Progress{Phase: PhaseIngest, ContentID: res.ContentID})
	if _, err := u.bus.Emit(ctx, bus.ChanUpdateTag, dl.Payload); err != nil {
		u.progress(ctx, Progress{Phase: PhaseFailed, ContentID: res.ContentID, Err: err.Error()})
		return nil, fmt.Errorf("updater: ingest: %w", err)
	}

	u.progress(ctx, Progress{Phase: PhaseDone, ContentID: res.ContentID})
	u.logger.Info("updater: dataset updated", "sha", res.ContentID)
	return res, nil
}

func (u *Updater) progress(ctx context.Context, p Progress) {
	u.bus.Broadcast(ctx, bus.ChanUpdatingDatabase, p)
}

// Progress phases broadcast on the updating-database channel.
const (
	PhaseCheck    = "check"
	PhaseDownload = "download"
	PhaseIngest   = "ingest"
	PhaseDone     = "done"
	PhaseFailed   = "failed"
)

// Progress is one update progress record. During the download phase Loaded
// and Total track payload bytes (Total is -1 when the mirror did not report
// a length).
type Progress struct {
	Phase     string `json:"phase"`
	Loaded    int64  `json:"loaded,omitempty"`
	Total     int64  `json:"total,omitempty"`
	ContentID string `json:"content_id,omitempty"`
	Err       string `json:"error,omitempty"`
}
