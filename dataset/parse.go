package dataset

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseError is returned when a raw payload cannot be turned into a
// Snapshot. Ingest rejects atomically on a ParseError: the previous snapshot
// is retained and no partial dictionary is ever published.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("dataset: parse payload: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("dataset: parse payload: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// rawPayload mirrors the mirror dump shape:
// {"head":{"sha":...},"data":[{"namespace":...,"data":{key:{...}}}]}.
type rawPayload struct {
	Head struct {
		SHA string `json:"sha"`
	} `json:"head"`
	Data []struct {
		Namespace string              `json:"namespace"`
		Data      map[string]rawEntry `json:"data"`
	} `json:"data"`
}

type rawEntry struct {
	Name  string `json:"name"`
	Intro string `json:"intro"`
	Links string `json:"links"`
}

// sanitizer keeps the benign markup the dataset embeds in names and intros
// (links, emphasis, images) while stripping anything active.
var sanitizer = bluemonday.UGCPolicy()

// ParsePayload builds a Snapshot from a raw mirror payload. The payload's
// embedded head.sha becomes the snapshot's content identity. Either the
// whole payload parses or a *ParseError is returned; there is no partial
// result.
func ParsePayload(raw []byte) (*Snapshot, error) {
	var p rawPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &ParseError{Reason: "malformed JSON", Cause: err}
	}
	if p.Head.SHA == "" {
		return nil, &ParseError{Reason: "missing head.sha"}
	}
	if p.Data == nil {
		return nil, &ParseError{Reason: "missing data"}
	}

	entries := make(map[string]*TagEntry)
	for _, group := range p.Data {
		ns, _ := ParseNamespace(group.Namespace)
		for key, re := range group.Data {
			name := sanitizer.Sanitize(re.Name)
			e := &TagEntry{
				Namespace: ns,
				Key:       strings.ToLower(key),
				Name:      name,
				PlainName: stripMarkup(name),
				Intro:     sanitizer.Sanitize(re.Intro),
				Links:     sanitizer.Sanitize(re.Links),
			}
			entries[e.FullKey()] = e
		}
	}

	return &Snapshot{contentID: p.Head.SHA, entries: entries}, nil
}

// stripMarkup renders a name fragment down to its text content, dropping
// embedded image/emoji subtrees. Used for matching against document text.
func stripMarkup(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}

	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(s), ctx)
	if err != nil {
		return strings.TrimSpace(s)
	}

	var b strings.Builder
	for _, n := range nodes {
		collectText(n, &b)
	}
	return strings.TrimSpace(b.String())
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && n.DataAtom == atom.Img {
		return
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
