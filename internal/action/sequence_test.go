package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/v0xg/steprec/internal/locator"
)

func seqOf(ids ...string) *Sequence {
	s := &Sequence{}
	for _, id := range ids {
		s.Append(Action{ID: id, Locator: locator.ForCSS("#" + id), Step: Click{}})
	}
	return s
}

func ids(s *Sequence) []string {
	var out []string
	for _, a := range s.Actions {
		out = append(out, a.ID)
	}
	return out
}

func TestSequenceMove(t *testing.T) {
	tests := []struct {
		from, to int
		want     []string
	}{
		{0, 2, []string{"b", "c", "a", "d"}},
		{3, 0, []string{"d", "a", "b", "c"}},
		{1, 2, []string{"a", "c", "b", "d"}},
		{2, 2, []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		s := seqOf("a", "b", "c", "d")
		require.NoError(t, s.Move(tt.from, tt.to))
		assert.Equal(t, tt.want, ids(s), "move %d -> %d", tt.from, tt.to)
	}

	s := seqOf("a")
	assert.Error(t, s.Move(0, 1))
	assert.Error(t, s.Move(-1, 0))
}

func TestSequenceRemoveAndReplace(t *testing.T) {
	s := seqOf("a", "b", "c")
	require.NoError(t, s.RemoveAt(1))
	assert.Equal(t, []string{"a", "c"}, ids(s))
	assert.Error(t, s.RemoveAt(2))

	require.NoError(t, s.ReplaceAt(0, Action{ID: "z", Locator: locator.ForCSS("#z"), Step: Hover{}}))
	assert.Equal(t, []string{"z", "c"}, ids(s))
	assert.Equal(t, KindHover, s.Actions[0].Kind())
}

func TestSequenceCloneIsIndependent(t *testing.T) {
	s := &Sequence{Origin: "https://example.com"}
	s.Append(New(locator.ForCSS("#f"), FileUpload{Files: []File{{Name: "a.txt"}}}))

	c := s.Clone()
	c.Actions[0].Step.(FileUpload).Files[0].Name = "changed.txt"
	c.Append(New(locator.ForCSS("#x"), Click{}))

	assert.Equal(t, "a.txt", s.Actions[0].Step.(FileUpload).Files[0].Name)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, s.Origin, c.Origin)
}

func TestSequenceAnnotate(t *testing.T) {
	s := seqOf("a", "b")
	assert.True(t, s.Annotate("b", "data:image/png;base64,AA=="))
	assert.Equal(t, "data:image/png;base64,AA==", s.Actions[1].Image)
	assert.False(t, s.Annotate("missing", "x"))
}

func TestSequenceValidateNamesIndex(t *testing.T) {
	s := seqOf("a")
	s.Append(Action{ID: "bad", Step: Click{}})
	err := s.Validate()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "action 2")
}
