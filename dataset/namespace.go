package dataset

// Namespace classifies a tag entry. The set is fixed by the remote dataset;
// unknown namespaces fall back to Misc.
type Namespace string

const (
	Misc      Namespace = "misc" // default, bare keys
	Reclass   Namespace = "reclass"
	Language  Namespace = "language"
	Parody    Namespace = "parody"
	Character Namespace = "character"
	Group     Namespace = "group"
	Artist    Namespace = "artist"
	Cosplayer Namespace = "cosplayer"
	Female    Namespace = "female"
	Male      Namespace = "male"
	Mixed     Namespace = "mixed"
	Other     Namespace = "other"
	Temp      Namespace = "temp"
)

var abbrevs = map[Namespace]string{
	Misc:      "",
	Reclass:   "r",
	Language:  "l",
	Parody:    "p",
	Character: "c",
	Group:     "g",
	Artist:    "a",
	Cosplayer: "cos",
	Female:    "f",
	Male:      "m",
	Mixed:     "x",
	Other:     "o",
	Temp:      "temp",
}

var byName = func() map[string]Namespace {
	m := make(map[string]Namespace, 2*len(abbrevs))
	for ns, ab := range abbrevs {
		m[string(ns)] = ns
		if ab != "" {
			m[ab] = ns
		}
	}
	return m
}()

// Abbrev returns the namespace's short prefix used in full keys.
// Misc has no prefix.
func (ns Namespace) Abbrev() string {
	return abbrevs[ns]
}

// ParseNamespace resolves a namespace from its full name or abbreviation.
// ok is false for unknown input, in which case Misc is returned.
func ParseNamespace(s string) (Namespace, bool) {
	if ns, ok := byName[s]; ok {
		return ns, true
	}
	return Misc, false
}
