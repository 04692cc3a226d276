package ivr

import (
	"regexp"
	"strings"
)

// Verdict is the outcome of running generated text through the Filter.
type Verdict struct {
	Text       string
	Suspicious bool // the model tagged the request as seeking sensitive data
	Rewritten  bool // opinion leakage replaced the text
}

// Filter post-processes generated replies before they are spoken or stored.
// The model signals a suspicious request by embedding marker in its reply;
// that convention is confined to this type.
type Filter struct {
	marker         *regexp.Regexp
	opinionMarkers []string
	helplineSuffix string
}

func NewFilter(marker string, opinionMarkers []string, helplineSuffix string) *Filter {
	lowered := make([]string, 0, len(opinionMarkers))
	for _, m := range opinionMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			lowered = append(lowered, m)
		}
	}
	f := &Filter{opinionMarkers: lowered, helplineSuffix: helplineSuffix}
	if marker = strings.TrimSpace(marker); marker != "" {
		f.marker = regexp.MustCompile("(?i)" + regexp.QuoteMeta(marker))
	}
	return f
}

// NewCatalogFilter builds a Filter from the catalog settings.
func NewCatalogFilter(c *Catalog) *Filter {
	return NewFilter(c.SuspiciousMarker, c.OpinionMarkers, c.HelplineSuffix)
}

// Apply strips the suspicious marker, in any letter case, and then checks the
// remaining text for opinion markers. fallback is the selected language's
// fallback message.
func (f *Filter) Apply(raw, fallback string) Verdict {
	v := Verdict{Text: strings.TrimSpace(raw)}

	if f.marker != nil && f.marker.MatchString(v.Text) {
		v.Suspicious = true
		v.Text = strings.Join(strings.Fields(f.marker.ReplaceAllLiteralString(v.Text, " ")), " ")
	}
	if v.Text == "" {
		v.Text = fallback
	}

	lower := strings.ToLower(v.Text)
	for _, m := range f.opinionMarkers {
		if strings.Contains(lower, m) {
			v.Rewritten = true
			v.Text = strings.TrimSpace(fallback + " " + f.helplineSuffix)
			break
		}
	}
	return v
}
