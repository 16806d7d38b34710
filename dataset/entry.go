package dataset

import "strings"

// TagEntry is one translation unit. Entries are created wholesale on ingest
// and never mutated afterwards; treat all fields as read-only.
type TagEntry struct {
	Namespace Namespace `json:"namespace"`
	Key       string    `json:"key"`        // lowercase source term, unique within namespace
	Name      string    `json:"name"`       // target-language rendering, may carry benign markup
	PlainName string    `json:"plain_name"` // Name with image/emoji markup stripped, used for matching
	Intro     string    `json:"intro,omitempty"`
	Links     string    `json:"links,omitempty"`
}

// FullKey is the entry's globally unique identity: "<abbrev>:<key>", or the
// bare key for the misc namespace. Always lowercase.
func (e *TagEntry) FullKey() string {
	ab := e.Namespace.Abbrev()
	if ab == "" {
		return strings.ToLower(e.Key)
	}
	return ab + ":" + strings.ToLower(e.Key)
}

// CanonicalKey normalizes a raw full key for snapshot lookup: lowercased,
// with a full namespace name collapsed to its abbreviation.
func CanonicalKey(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	nsPart, key, found := strings.Cut(raw, ":")
	if !found {
		return raw
	}
	ns, ok := ParseNamespace(nsPart)
	if !ok {
		return raw
	}
	if ab := ns.Abbrev(); ab != "" {
		return ab + ":" + key
	}
	return key
}
