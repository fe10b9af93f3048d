package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubCompleter struct {
	answer      string
	err         error
	instruction string
	mimeType    string
}

func (s *stubCompleter) CompleteJSON(_ context.Context, instruction string, _ []byte, mimeType string) (string, error) {
	s.instruction = instruction
	s.mimeType = mimeType
	return s.answer, s.err
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		err    error
		opts   []Option
		want   string
	}{
		{name: "name present", answer: `{"fullName": "Ada Lovelace"}`, want: "Ada Lovelace"},
		{name: "name trimmed", answer: "```json\n{\"fullName\": \"  Grace Hopper \"}\n```", want: "Grace Hopper"},
		{name: "service error", err: errors.New("upstream 500"), want: DefaultUnknown},
		{name: "not json", answer: "The name is Alan", want: DefaultUnknown},
		{name: "field missing", answer: `{"name": "Alan"}`, want: DefaultUnknown},
		{name: "field empty", answer: `{"fullName": ""}`, want: DefaultUnknown},
		{name: "custom sentinel", answer: `{}`, opts: []Option{WithUnknown("UNKNOWN")}, want: "UNKNOWN"},
		{name: "custom field", answer: `{"adultName": "Alan Turing"}`, opts: []Option{WithField("adultName")}, want: "Alan Turing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &stubCompleter{answer: tt.answer, err: tt.err}
			got := New(c, tt.opts...).Extract(context.Background(), []byte("img"), "image/jpeg")
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "image/jpeg", c.mimeType)
		})
	}
}

func TestExtract_PromptNamesField(t *testing.T) {
	c := &stubCompleter{answer: `{"holder": "X"}`}
	e := New(c, WithField("holder"))

	assert.Equal(t, "X", e.Extract(context.Background(), nil, "image/png"))
	assert.Contains(t, c.instruction, `{"holder": "<name>"}`)
}

func TestExtract_NilCompleter(t *testing.T) {
	assert.Equal(t, DefaultUnknown, New(nil).Extract(context.Background(), nil, ""))
}
