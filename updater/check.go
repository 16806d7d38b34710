package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lixinlkmn2004/tagsyringe/kvstore"
)

const keyCheckResult = "updater:check_result"

// Descriptor is the remote origin's latest release descriptor. Body embeds,
// inside an HTML-comment delimiter, the metadata naming the mirror asset.
type Descriptor struct {
	TargetCommit string `json:"target_commit"`
	Body         string `json:"body"`
}

// CheckResult is the memoized outcome of the last version probe, persisted
// so a restart does not immediately re-probe. CheckedAt is monotonically
// non-decreasing across writes: last writer wins by timestamp, not by call
// order, which defends against out-of-order completions of overlapping
// checks.
type CheckResult struct {
	ContentID  string      `json:"content_id"`
	Descriptor *Descriptor `json:"descriptor"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// checkMemo holds the last accepted CheckResult in memory and mirrors it to
// the kvstore. Persist failures are logged and swallowed; the in-memory
// value stays authoritative for the session.
type checkMemo struct {
	mu     sync.Mutex
	last   *CheckResult
	kv     kvstore.Store
	logger *slog.Logger
}

func newCheckMemo(ctx context.Context, kv kvstore.Store, logger *slog.Logger) *checkMemo {
	m := &checkMemo{kv: kv, logger: logger}

	raw, ok, err := kv.Get(ctx, keyCheckResult)
	if err != nil {
		logger.Error("updater: read persisted check result", "error", err)
		return m
	}
	if !ok {
		return m
	}
	var res CheckResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		logger.Warn("updater: persisted check result unusable", "error", err)
		return m
	}
	m.last = &res
	return m
}

func (m *checkMemo) get() *CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// commit accepts res only if its CheckedAt is newer than the held value and
// returns whichever result won.
func (m *checkMemo) commit(ctx context.Context, res *CheckResult) *CheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.last != nil && !res.CheckedAt.After(m.last.CheckedAt) {
		return m.last
	}
	m.last = res

	raw, err := json.Marshal(res)
	if err != nil {
		m.logger.Error("updater: marshal check result", "error", err)
		return res
	}
	if err := m.kv.Set(ctx, keyCheckResult, string(raw)); err != nil {
		m.logger.Error("updater: persist check result", "error", err)
	}
	return res
}

// CheckVersion probes the remote origin for the latest release descriptor.
// When not forced, a memoized result younger than the cooldown window with a
// usable descriptor is returned without a network call.
func (u *Updater) CheckVersion(ctx context.Context, force bool) (*CheckResult, error) {
	if last := u.memo.get(); !force && last != nil && last.Descriptor != nil &&
		u.now().Sub(last.CheckedAt) < u.cfg.Cooldown {
		return last, nil
	}

	desc, err := u.fetchDescriptor(ctx)
	if err != nil {
		return nil, err
	}

	res := &CheckResult{
		ContentID:  desc.TargetCommit,
		Descriptor: desc,
		CheckedAt:  u.now(),
	}
	accepted := u.memo.commit(ctx, res)
	u.logger.Debug("updater: version checked", "sha", accepted.ContentID)
	return accepted, nil
}

func (u *Updater) fetchDescriptor(ctx context.Context) (*Descriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.OriginURL, nil)
	if err != nil {
		return nil, fmt.Errorf("updater: build descriptor request: %w", err)
	}
	if u.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", u.cfg.UserAgent)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("updater: fetch descriptor: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updater: fetch descriptor: status %d", resp.StatusCode)
	}

	var desc Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
		return nil, fmt.Errorf("updater: decode descriptor: %w", err)
	}
	if desc.TargetCommit == "" {
		return nil, &RemoteDescriptorError{Missing: "target_commit"}
	}
	if desc.Body == "" {
		return nil, &RemoteDescriptorError{Missing: "body"}
	}
	return &desc, nil
}
