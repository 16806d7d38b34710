package dataset

import (
	"errors"
	"strings"
	"testing"
)

const samplePayload = `{
	"head": {"sha": "abc123"},
	"data": [
		{
			"namespace": "artist",
			"data": {
				"Foo": {"name": "福", "intro": "an artist", "links": ""}
			}
		},
		{
			"namespace": "female",
			"data": {
				"swimsuit": {"name": "水着", "intro": "", "links": ""}
			}
		},
		{
			"namespace": "misc",
			"data": {
				"3d": {"name": "3D", "intro": "", "links": ""}
			}
		}
	]
}`

func TestParsePayload(t *testing.T) {
	snap, err := ParsePayload([]byte(samplePayload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ContentID() != "abc123" {
		t.Fatalf("content id: got %q", snap.ContentID())
	}
	if snap.Len() != 3 {
		t.Fatalf("entries: got %d, want 3", snap.Len())
	}

	e := snap.Get("a:foo")
	if e == nil {
		t.Fatal("a:foo not found")
	}
	if e.Namespace != Artist || e.Key != "foo" || e.PlainName != "福" {
		t.Fatalf("got %+v", e)
	}

	// Misc entries use the bare key.
	if snap.Get("3d") == nil {
		t.Fatal("bare misc key not found")
	}
	// Lookup canonicalizes full namespace names and case.
	if snap.Get("FEMALE:Swimsuit") == nil {
		t.Fatal("canonicalized lookup failed")
	}
}

func TestParsePayload_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed JSON", `{"head":`},
		{"missing head.sha", `{"head":{},"data":[]}`},
		{"missing data", `{"head":{"sha":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.raw))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestParsePayload_SanitizesMarkup(t *testing.T) {
	raw := `{
		"head": {"sha": "s"},
		"data": [{
			"namespace": "other",
			"data": {
				"smile": {"name": "<img src=\"e.png\" alt=\"emoji\">微笑<script>alert(1)</script>", "intro": "", "links": ""}
			}
		}]
	}`
	snap, err := ParsePayload([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	e := snap.Get("o:smile")
	if e == nil {
		t.Fatal("entry missing")
	}
	if e.PlainName != "微笑" {
		t.Fatalf("plain name: got %q, want 微笑", e.PlainName)
	}
	if strings.Contains(e.Name, "<script") {
		t.Fatalf("active markup survived sanitization: %q", e.Name)
	}
}

func TestCanonicalKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"female:swimsuit", "f:swimsuit"},
		{"f:swimsuit", "f:swimsuit"},
		{"ARTIST:Foo", "a:foo"},
		{"3d", "3d"},
		{"unknown:thing", "unknown:thing"},
		{"  cosplayer:alice  ", "cos:alice"},
	}
	for _, tt := range tests {
		if got := CanonicalKey(tt.in); got != tt.want {
			t.Errorf("CanonicalKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNamespaceRoundTrip(t *testing.T) {
	for ns := range abbrevs {
		got, ok := ParseNamespace(string(ns))
		if !ok || got != ns {
			t.Errorf("ParseNamespace(%q) = %v, %v", ns, got, ok)
		}
		if ab := ns.Abbrev(); ab != "" {
			got, ok = ParseNamespace(ab)
			if !ok || got != ns {
				t.Errorf("ParseNamespace(%q) = %v, %v", ab, got, ok)
			}
		}
	}
	if _, ok := ParseNamespace("bogus"); ok {
		t.Error("unknown namespace accepted")
	}
}
