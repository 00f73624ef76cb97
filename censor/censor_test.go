package censor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyDefaultReplacement(t *testing.T) {
	f := NewFilter()
	f.Add("fool", "")
	assert.Equal(t, "You are a ****", f.Apply("You are a Fool"))
}

func TestApplyExplicitReplacement(t *testing.T) {
	f := NewFilter()
	f.Add("heck", "h***")
	assert.Equal(t, "what the h***", f.Apply("what the heck"))
}

func TestApplyCaseInsensitiveLookup(t *testing.T) {
	f := NewFilter()
	f.Add("FOOL", "silly")
	assert.True(t, f.IsCensored("fool"))
	assert.Equal(t, "silly me", f.Apply("FOOL me"))
}

func TestApplyAllOccurrences(t *testing.T) {
	f := NewFilter()
	f.Add("spam", "")
	assert.Equal(t, "**** **** eggs and ****", f.Apply("spam spam eggs and spam"))
}

func TestApplyPreservesSurroundings(t *testing.T) {
	f := NewFilter()
	f.Add("fool", "")
	assert.Equal(t, "Hello World, you ****", f.Apply("Hello World, you Fool"))
}

func TestApplyNoMatch(t *testing.T) {
	f := NewFilter()
	f.Add("fool", "")
	assert.Equal(t, "all good here", f.Apply("all good here"))
}

func TestRemove(t *testing.T) {
	f := NewFilter()
	f.Add("fool", "")
	f.Remove("FOOL")
	assert.False(t, f.IsCensored("fool"))
	assert.Equal(t, "Fool", f.Apply("Fool"))
}

func TestWordsCopy(t *testing.T) {
	f := NewFilter()
	f.Add("Fool", "silly")
	words := f.Words()
	assert.Equal(t, map[string]string{"fool": "silly"}, words)
	words["extra"] = "x"
	assert.False(t, f.IsCensored("extra"))
}
