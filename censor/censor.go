package censor

import (
	"strings"
	"sync"
)

// Filter is a per-channel map of censored words to their replacements.
// Keys are normalized to lowercase, matching is case-insensitive.
type Filter struct {
	mu    sync.RWMutex
	words map[string]string
}

func NewFilter() *Filter {
	return &Filter{words: make(map[string]string)}
}

// Add censors a word. An empty replacement means the word is blanked with a
// run of '*' of the same length when applied.
func (f *Filter) Add(word, replacement string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.words[strings.ToLower(word)] = replacement
}

// Remove lifts the censorship of a word.
func (f *Filter) Remove(word string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.words, strings.ToLower(word))
}

// IsCensored reports whether the word is on the censored list.
func (f *Filter) IsCensored(word string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.words[strings.ToLower(word)]
	return ok
}

// Words returns a copy of the censored word map.
func (f *Filter) Words() map[string]string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]string, len(f.words))
	for w, r := range f.words {
		out[w] = r
	}
	return out
}

// Apply censors the message. The message is split on whitespace, each token
// is looked up case-insensitively, and on a match every occurrence of the
// token is replaced in the original text. Everything around the tokens is
// preserved as-is.
func (f *Filter) Apply(message string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.words) == 0 {
		return message
	}
	for _, token := range strings.Fields(message) {
		replacement, ok := f.words[strings.ToLower(token)]
		if !ok {
			continue
		}
		if replacement == "" {
			replacement = strings.Repeat("*", len(token))
		}
		message = strings.ReplaceAll(message, token, replacement)
	}
	return message
}
