package patcher

import (
	"regexp"
	"testing"

	"golang.org/x/net/html"
)

func TestStructuralClassifier(t *testing.T) {
	classify := StructuralClassifier("gt", "gtl")

	tests := []struct {
		name       string
		build      func() *html.Node // returns the node to classify
		wantKey    string
		wantOK     bool
		wantFromID bool
	}{
		{
			name: "title attribute on marked ancestor",
			build: func() *html.Node {
				n := text("swimsuit")
				elem("div", map[string]string{"class": "gt", "title": "female:swimsuit"}, n)
				return n
			},
			wantKey: "f:swimsuit",
			wantOK:  true,
		},
		{
			name: "id naming convention",
			build: func() *html.Node {
				n := text("full color")
				elem("div", map[string]string{"class": "gtl", "id": "ta_full_color"}, n)
				return n
			},
			wantKey:    "full color",
			wantOK:     true,
			wantFromID: true,
		},
		{
			name: "marker deeper in ancestor chain",
			build: func() *html.Node {
				n := text("foo")
				elem("div", map[string]string{"class": "taglist gt", "title": "artist:foo"},
					elem("a", nil, n))
				return n
			},
			wantKey: "a:foo",
			wantOK:  true,
		},
		{
			name: "no marker ancestor",
			build: func() *html.Node {
				n := text("foo")
				elem("div", map[string]string{"class": "unrelated", "title": "artist:foo"}, n)
				return n
			},
			wantOK: false,
		},
		{
			name: "marker without key source",
			build: func() *html.Node {
				n := text("foo")
				elem("div", map[string]string{"class": "gt"}, n)
				return n
			},
			wantOK: false,
		},
		{
			name: "marker token must match exactly",
			build: func() *html.Node {
				n := text("foo")
				elem("div", map[string]string{"class": "gtx", "title": "artist:foo"}, n)
				return n
			},
			wantOK: false,
		},
		{
			name:   "element node is never a candidate",
			build:  func() *html.Node { return elem("div", map[string]string{"class": "gt", "title": "a:x"}) },
			wantOK: false,
		},
		{
			name: "whitespace-only text is never a candidate",
			build: func() *html.Node {
				n := text("   ")
				elem("div", map[string]string{"class": "gt", "title": "artist:foo"}, n)
				return n
			},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := classify(tt.build())
			if ok != tt.wantOK || c.FullKey != tt.wantKey || c.FromID != tt.wantFromID {
				t.Fatalf("got (%q, fromID=%v, %v), want (%q, fromID=%v, %v)",
					c.FullKey, c.FromID, ok, tt.wantKey, tt.wantFromID, tt.wantOK)
			}
			if tt.wantOK && c.Container == nil {
				t.Fatal("positive classification missing container")
			}
		})
	}
}

func TestTextRules_Apply(t *testing.T) {
	r := &TextRules{
		Exact: map[string]string{"Search": "搜索"},
		Patterns: []PatternRule{
			{Pattern: regexp.MustCompile(`(\d+) pages`), Replacement: "$1 页"},
			{Pattern: regexp.MustCompile(`页$`), Replacement: "页。"},
		},
	}

	tests := []struct {
		in, want string
	}{
		{"Search", "搜索"},
		{"10 pages", "10 页。"}, // patterns apply in order
		{"untouched", "untouched"},
	}
	for _, tt := range tests {
		if got := r.Apply(tt.in); got != tt.want {
			t.Errorf("Apply(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	// Nil rules are a no-op.
	var nilRules *TextRules
	if got := nilRules.Apply("x"); got != "x" {
		t.Errorf("nil rules: %q", got)
	}
}

func TestTable_ForPath(t *testing.T) {
	tbl := Table{
		"/gallery": {Exact: map[string]string{"a": "b"}},
		"*":        {Exact: map[string]string{"a": "c"}},
	}
	if tbl.ForPath("/gallery").Apply("a") != "b" {
		t.Error("exact path not used")
	}
	if tbl.ForPath("/other").Apply("a") != "c" {
		t.Error("fallback not used")
	}
	if (Table{}).ForPath("/x") != nil {
		t.Error("empty table should return nil")
	}
}
