package format

// Kind selects one of the message formats a chatter or channel can render.
type Kind int

const (
	KindChat Kind = iota
	KindJoin
	KindLeave
	KindBan
	KindPrivateMessage
)

var kindNodes = map[Kind]string{
	KindChat:           "chat-format",
	KindJoin:           "join-message-format",
	KindLeave:          "leave-message-format",
	KindBan:            "ban-message-format",
	KindPrivateMessage: "private-message-format",
}

var kindPlaceholders = map[Kind][]string{
	KindChat:           {PlaceholderName, PlaceholderMessage, PlaceholderChannel},
	KindJoin:           {PlaceholderName, PlaceholderChannel},
	KindLeave:          {PlaceholderName, PlaceholderChannel, PlaceholderQuitMessage},
	KindBan:            {PlaceholderName, PlaceholderChannel},
	KindPrivateMessage: {PlaceholderName, PlaceholderMessage, PlaceholderAddress},
}

// String returns the configuration node name of the kind, which is also the
// key used for per-chatter format overrides.
func (k Kind) String() string {
	return kindNodes[k]
}

// Placeholders returns the placeholder names the kind's templates are
// expected to carry.
func (k Kind) Placeholders() []string {
	return kindPlaceholders[k]
}

// KindFromNode resolves a configuration node name back to its Kind.
func KindFromNode(node string) (Kind, bool) {
	for k, n := range kindNodes {
		if n == node {
			return k, true
		}
	}
	return 0, false
}

// Set holds the default template per kind, loaded once from configuration
// and passed into the components that need defaults.
type Set map[Kind]*Template

// SetFromNodes builds a Set from configuration node name to template source
// mappings, ignoring unknown nodes.
func SetFromNodes(nodes map[string]string) Set {
	set := make(Set, len(nodes))
	for node, source := range nodes {
		if kind, ok := KindFromNode(node); ok {
			set[kind] = Parse(source)
		}
	}
	return set
}

// Get returns a fresh clone of the default template for the kind, or an
// empty message template when the kind has no configured default.
func (s Set) Get(k Kind) *Template {
	if t, ok := s[k]; ok {
		return t.Clone()
	}
	return Parse("{" + PlaceholderMessage + "}")
}
