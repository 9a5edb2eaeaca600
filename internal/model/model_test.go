package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptCloneDoesNotAlias(t *testing.T) {
	storyID := "story1"
	s := Script{ID: "s1", StoryID: &storyID, Characters: []string{"ALICE"}}

	c := s.Clone()
	*c.StoryID = "story2"
	c.Characters[0] = "BOB"

	assert.Equal(t, "story1", s.StoryRef())
	assert.Equal(t, "ALICE", s.Characters[0])
}

func TestStoryboardCloneCopiesScenes(t *testing.T) {
	scriptID := "s1"
	b := Storyboard{ID: "b1", ScriptID: &scriptID, Scenes: []Scene{{ID: "sc1", Shots: []string{"wide"}}}}

	c := b.Clone()
	c.Scenes[0].Shots[0] = "close"
	*c.ScriptID = "s2"

	assert.Equal(t, "wide", b.Scenes[0].Shots[0])
	assert.Equal(t, "s1", b.ScriptRef())
}

func TestProjectCloneCopiesBudget(t *testing.T) {
	p := Project{ID: "p1", Budget: &Budget{Total: 10, Lines: map[string]int64{"crew": 5}}}

	c := p.Clone()
	c.Budget.Lines["crew"] = 9
	c.Budget.Total = 1

	assert.Equal(t, int64(10), p.Budget.Total)
	assert.Equal(t, int64(5), p.Budget.Lines["crew"])
}

func TestParsePlatform(t *testing.T) {
	p, ok := ParsePlatform("YOUTUBE")
	assert.True(t, ok)
	assert.Equal(t, PlatformYouTube, p)

	_, ok = ParsePlatform("youtube")
	assert.False(t, ok)
}

func TestRefsOnNil(t *testing.T) {
	assert.Empty(t, Script{}.StoryRef())
	assert.Empty(t, Storyboard{}.ScriptRef())
}
