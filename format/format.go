package format

import "strings"

// The placeholder names recognized in templates. A placeholder appears in the
// template source surrounded by single curly brackets, f.e. "{NAME}: {MESSAGE}".
const (
	PlaceholderName        = "NAME"
	PlaceholderMessage     = "MESSAGE"
	PlaceholderQuitMessage = "QUIT_MESSAGE"
	PlaceholderAddress     = "ADDRESS"
	PlaceholderChannel     = "CHANNEL"
)

type segment struct {
	text        string
	placeholder bool
}

// Template is a string with named substitution points. The source is scanned
// exactly once at Parse time, substituted values are kept apart from the
// segment list, so substituting a value which itself contains a placeholder
// token never triggers a second expansion.
type Template struct {
	source   string
	segments []segment
	values   map[string]string
}

// Parse scans the template source into literal and placeholder segments.
// A placeholder is an uppercase token (A-Z, 0-9, underscore) in single curly
// brackets; anything else is literal text.
func Parse(source string) *Template {
	t := &Template{source: source, values: make(map[string]string)}
	literal := strings.Builder{}
	for i := 0; i < len(source); {
		if source[i] == '{' {
			if end := placeholderEnd(source, i); end > 0 {
				if literal.Len() > 0 {
					t.segments = append(t.segments, segment{text: literal.String()})
					literal.Reset()
				}
				t.segments = append(t.segments, segment{text: source[i+1 : end], placeholder: true})
				i = end + 1
				continue
			}
		}
		literal.WriteByte(source[i])
		i++
	}
	if literal.Len() > 0 {
		t.segments = append(t.segments, segment{text: literal.String()})
	}
	return t
}

// placeholderEnd returns the index of the closing bracket of a placeholder
// starting at the opening bracket at position i, or -1 if the token at i is
// not a placeholder.
func placeholderEnd(source string, i int) int {
	for j := i + 1; j < len(source); j++ {
		c := source[j]
		if c == '}' {
			if j == i+1 {
				return -1
			}
			return j
		}
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '_' {
			return -1
		}
	}
	return -1
}

// Source returns the original template string.
func (t *Template) Source() string {
	return t.source
}

// Clone returns an independent copy of the template with no substituted
// values. Channels hand out clones so concurrent broadcasts never share
// substitution state.
func (t *Template) Clone() *Template {
	return &Template{
		source:   t.source,
		segments: t.segments,
		values:   make(map[string]string),
	}
}

// Has reports whether the template contains the named placeholder.
func (t *Template) Has(name string) bool {
	for _, seg := range t.segments {
		if seg.placeholder && seg.text == name {
			return true
		}
	}
	return false
}

// Substitute sets the value of the named placeholder. Substituting an absent
// placeholder is a no-op, substituting the same placeholder again overwrites
// the previous value. Returns whether the placeholder is present.
func (t *Template) Substitute(name, value string) bool {
	if !t.Has(name) {
		return false
	}
	t.values[name] = value
	return true
}

// String renders the template. Placeholders without a substituted value
// render as their original bracketed token.
func (t *Template) String() string {
	out := strings.Builder{}
	for _, seg := range t.segments {
		if !seg.placeholder {
			out.WriteString(seg.text)
			continue
		}
		if v, ok := t.values[seg.text]; ok {
			out.WriteString(v)
		} else {
			out.WriteString("{" + seg.text + "}")
		}
	}
	return out.String()
}
