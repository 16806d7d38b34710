// Package patcher applies the tag dictionary to a live document tree that
// the host mutates concurrently. It walks the tree once, tracks every
// translatable node, and re-applies translations whenever the dataset store
// publishes a new snapshot — exactly once per node, idempotently, without
// owning the nodes the host removes or replaces.
//
// The patcher never owns a node: a TrackedNode is a relation plus a
// liveness probe, and entries whose node the host detached are dropped
// lazily on the next re-patch sweep.
package patcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lixinlkmn2004/tagsyringe/dataset"
)

// TrackedNode is one live entry in the patcher's set: the dictionary key a
// node was classified under and its original source text. OriginalText is
// always the re-translation input — never the previously rendered output —
// which is what makes re-patching idempotent.
type TrackedNode struct {
	node         *html.Node
	container    *html.Node
	fromID       bool
	FullKey      string
	OriginalText string
}

// Patcher tracks translatable nodes in one document tree and keeps their
// rendered text in sync with the dataset store's snapshot.
//
// The host must serialize tree mutation with patcher calls; all entry
// points take the patcher's mutex, so the dataset subscription loop and the
// host's mutation notifications do not interleave mid-walk.
type Patcher struct {
	root     *html.Node
	ds       *dataset.Store
	classify Classifier
	rules    *TextRules
	logger   *slog.Logger

	mu      sync.Mutex
	tracked map[*html.Node]*TrackedNode
	scanned bool
}

// Option configures a Patcher.
type Option func(*Patcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Patcher) { p.logger = l }
}

// WithClassifier replaces the default structural classifier.
func WithClassifier(c Classifier) Option {
	return func(p *Patcher) { p.classify = c }
}

// WithTextRules enables generic text translation for the document. Pick the
// table entry for the current document path with Table.ForPath.
func WithTextRules(r *TextRules) Option {
	return func(p *Patcher) { p.rules = r }
}

// DefaultMarkers are the tag-container class tokens recognized by the
// default classifier.
var DefaultMarkers = []string{"gt", "gtl", "gtw", "tag"}

// New creates a Patcher over root. Call Scan to perform the initial walk,
// then Run (or Repatch) to follow dataset changes and NodesAdded to feed
// tree mutations.
func New(root *html.Node, ds *dataset.Store, opts ...Option) *Patcher {
	p := &Patcher{
		root:     root,
		ds:       ds,
		classify: StructuralClassifier(DefaultMarkers...),
		logger:   slog.Default(),
		tracked:  make(map[*html.Node]*TrackedNode),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Scan performs the initial depth-first walk: classify every node, build
// the tracked set, and apply whatever snapshot is currently resident. An
// empty snapshot is fine — untranslated originals stay visible.
func (p *Patcher) Scan() {
	snap := p.ds.Current()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.walk(p.root, snap)
	p.scanned = true

	p.logger.Info("patcher: initial scan complete",
		"tracked", len(p.tracked), "sha", snap.ContentID())
}

// NodesAdded is the tree-mutation notification: each added subtree is
// walked exactly once with the same classifier. Removals need no
// notification — dead entries are swept lazily on the next re-patch.
// Ignored until the initial scan has completed (Scan will cover the nodes).
func (p *Patcher) NodesAdded(nodes ...*html.Node) {
	snap := p.ds.Current()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.scanned {
		return
	}
	for _, n := range nodes {
		p.walk(n, snap)
	}
}

// Repatch sweeps the tracked set for liveness, dropping entries whose node
// the host detached, then re-applies snap to every survivor. Applying the
// same snapshot twice produces byte-identical output because rendering
// always starts from the tracked original text.
func (p *Patcher) Repatch(snap *dataset.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for node, tn := range p.tracked {
		if !p.stillAttached(node) {
			delete(p.tracked, node)
			continue
		}
		p.apply(tn, snap)
	}
}

// Run subscribes to the dataset store's changes and re-patches on each new
// snapshot until ctx is done. The subscription replays only the latest
// value, so a re-patch always uses the newest snapshot at the time it runs.
func (p *Patcher) Run(ctx context.Context) {
	for snap := range p.ds.Changes(ctx) {
		p.Repatch(snap)
	}
}

// Tracked returns the size of the live set.
func (p *Patcher) Tracked() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracked)
}

// Lookup returns the tracked record for a node, if any.
func (p *Patcher) Lookup(n *html.Node) (*TrackedNode, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tn, ok := p.tracked[n]
	return tn, ok
}

// walk classifies a subtree depth-first. Tag nodes are tracked and
// translated from the snapshot; other text gets the stateless generic rules
// applied once. Script and style subtrees are skipped.
func (p *Patcher) walk(n *html.Node, snap *dataset.Snapshot) {
	if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
		return
	}

	if n.Type == html.TextNode {
		if _, seen := p.tracked[n]; seen {
			return
		}
		if c, ok := p.classify(n); ok {
			tn := &TrackedNode{
				node:         n,
				container:    c.Container,
				fromID:       c.FromID,
				FullKey:      c.FullKey,
				OriginalText: n.Data,
			}
			p.tracked[n] = tn
			p.apply(tn, snap)
			return
		}
		if p.rules != nil && strings.TrimSpace(n.Data) != "" {
			n.Data = p.rules.Apply(n.Data)
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c, snap)
	}
}

// apply renders a tracked node from its original text and the snapshot. A
// missing entry restores the original — degraded, not an error. When the key
// came from the container's id convention the container carries no readable
// key, so the translated container gets a title attribute holding the
// original text.
func (p *Patcher) apply(tn *TrackedNode, snap *dataset.Snapshot) {
	want := tn.OriginalText
	if e := snap.Get(tn.FullKey); e != nil && e.PlainName != "" {
		want = e.PlainName
		if tn.fromID && tn.container != nil {
			setAttr(tn.container, "title", strings.TrimSpace(tn.OriginalText))
		}
	}
	if tn.node.Data != want {
		tn.node.Data = want
	}
}

// setAttr updates an existing attribute in place or appends a new one.
func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// stillAttached probes node liveness: the parent chain must reach the
// patcher's root. Node lifetime is governed entirely by the host document.
func (p *Patcher) stillAttached(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n == p.root {
			return true
		}
	}
	return false
}
