package patcher

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/lixinlkmn2004/tagsyringe/dataset"
)

// Classification is a positive classifier result: the dictionary key, the
// marker element it was derived from, and whether the key came from that
// element's id naming convention rather than its title attribute.
type Classification struct {
	FullKey   string
	Container *html.Node
	FromID    bool
}

// Classifier decides whether a document node is a translatable tag and
// derives its dictionary key. It is pure: no patcher state, so conventions
// can be swapped or tested without touching observation logic.
type Classifier func(n *html.Node) (Classification, bool)

// idPrefix marks elements whose id encodes the tag key (underscores stand
// for spaces).
const idPrefix = "ta_"

// StructuralClassifier classifies by structural context, not text matching:
// only text nodes whose ancestor chain contains an element carrying one of
// the marker class tokens are candidates, and the key comes from that
// element's title attribute or its id naming convention — never from the
// text itself, so unrelated text that happens to spell a tag is left alone.
func StructuralClassifier(markers ...string) Classifier {
	return func(n *html.Node) (Classification, bool) {
		if n.Type != html.TextNode || strings.TrimSpace(n.Data) == "" {
			return Classification{}, false
		}

		container := findMarked(n, markers)
		if container == nil {
			return Classification{}, false
		}

		if title := attrVal(container, "title"); title != "" {
			return Classification{
				FullKey:   dataset.CanonicalKey(title),
				Container: container,
			}, true
		}
		if id := attrVal(container, "id"); strings.HasPrefix(id, idPrefix) {
			key := strings.ReplaceAll(strings.TrimPrefix(id, idPrefix), "_", " ")
			return Classification{
				FullKey:   dataset.CanonicalKey(key),
				Container: container,
				FromID:    true,
			}, true
		}
		return Classification{}, false
	}
}

// findMarked walks the ancestor chain looking for an element with one of
// the marker class tokens.
func findMarked(n *html.Node, markers []string) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type != html.ElementNode {
			continue
		}
		for _, token := range strings.Fields(attrVal(p, "class")) {
			for _, m := range markers {
				if token == m {
					return p
				}
			}
		}
	}
	return nil
}

func attrVal(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
