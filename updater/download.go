package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/tidwall/gjson"
)

// metaComment is the HTML-comment delimiter embedding release metadata in
// the descriptor's free-text body.
var metaComment = regexp.MustCompile(`(?s)<!--\s*release-meta\s*(\{.*?\})\s*-->`)

// ProgressFunc receives download progress. total is -1 when the mirror did
// not report a content length.
type ProgressFunc func(loaded, total int64)

// DownloadResult is a successfully fetched and identity-verified payload.
type DownloadResult struct {
	Descriptor *Descriptor
	Payload    []byte
}

// mirrorURLs builds the ordered mirror URL list for a descriptor: the asset
// name from the embedded release-meta comment appended to each configured
// mirror base.
func (u *Updater) mirrorURLs(desc *Descriptor) ([]string, error) {
	m := metaComment.FindStringSubmatch(desc.Body)
	if m == nil {
		return nil, &DescriptorParseError{Reason: "release-meta comment not found in body"}
	}
	meta := gjson.Parse(m[1])
	if !meta.IsObject() {
		return nil, &DescriptorParseError{Reason: "release-meta is not a JSON object"}
	}
	asset := meta.Get("asset").String()
	if asset == "" {
		return nil, &DescriptorParseError{Reason: "release-meta missing asset"}
	}

	urls := make([]string, 0, len(u.cfg.Mirrors))
	for _, base := range u.cfg.Mirrors {
		urls = append(urls, strings.TrimRight(base, "/")+"/"+asset)
	}
	if len(urls) == 0 {
		return nil, &DescriptorParseError{Reason: "no mirrors configured"}
	}
	return urls, nil
}

// Download fetches the payload for desc, trying mirrors strictly in order
// and returning on the first success. A payload is accepted only if its
// embedded head.sha matches desc.TargetCommit. Only when every mirror fails
// does Download return an error, a *DownloadError aggregating exactly the
// per-mirror failures.
func (u *Updater) Download(ctx context.Context, desc *Descriptor, onProgress ProgressFunc) (*DownloadResult, error) {
	urls, err := u.mirrorURLs(desc)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, mirror := range urls {
		payload, err := u.fetchMirror(ctx, mirror, desc.TargetCommit, onProgress)
		if err != nil {
			u.logger.Warn("updater: mirror failed", "mirror", mirror, "error", err)
			errs = append(errs, err)
			continue
		}
		u.logger.Info("updater: payload downloaded",
			"mirror", mirror, "bytes", len(payload))
		return &DownloadResult{Descriptor: desc, Payload: payload}, nil
	}
	return nil, &DownloadError{Errors: errs}
}

func (u *Updater) fetchMirror(ctx context.Context, url, targetCommit string, onProgress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &MirrorFetchError{URL: url, Cause: err}
	}
	// Range-aware fetch: servers that honour it return 206 with an exact
	// length, which makes progress reporting accurate.
	req.Header.Set("Range", "bytes=0-")
	if u.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", u.cfg.UserAgent)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, &MirrorFetchError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return nil, &MirrorFetchError{URL: url, Status: resp.StatusCode}
	}

	var r io.Reader = &progressReader{
		r:     resp.Body,
		total: resp.ContentLength,
		fn:    onProgress,
	}
	if strings.HasSuffix(url, ".gz") || resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, &MirrorFetchError{URL: url, Cause: fmt.Errorf("gzip: %w", err)}
		}
		defer gz.Close()
		r = gz
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, &MirrorFetchError{URL: url, Cause: err}
	}

	if sha := gjson.GetBytes(payload, "head.sha").String(); sha != targetCommit {
		return nil, &MirrorFetchError{URL: url, Mismatch: true, Got: sha}
	}
	return payload, nil
}

// progressReader reports cumulative bytes read through fn.
type progressReader struct {
	r      io.Reader
	loaded int64
	total  int64
	fn     ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.loaded += int64(n)
		if p.fn != nil {
			p.fn(p.loaded, p.total)
		}
	}
	return n, err
}
