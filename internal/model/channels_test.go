package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveChannels(t *testing.T) {
	tests := []struct {
		name string
		msg  *TaskStatusMessage
		want []string
	}{
		{
			name: "task only",
			msg:  &TaskStatusMessage{TaskID: "t1"},
			want: []string{"task:t1", "tasks:all"},
		},
		{
			name: "document and user",
			msg:  &TaskStatusMessage{TaskID: "t1", DocumentID: "d1", UserID: "u1"},
			want: []string{"task:t1", "document:d1", "user:u1", "tasks:all"},
		},
		{
			name: "all correlations",
			msg:  &TaskStatusMessage{TaskID: "t1", DocumentID: "d1", QueryID: "q1", UserID: "u1"},
			want: []string{"task:t1", "document:d1", "query:q1", "user:u1", "tasks:all"},
		},
		{
			name: "query only",
			msg:  &TaskStatusMessage{TaskID: "t2", QueryID: "q9"},
			want: []string{"task:t2", "query:q9", "tasks:all"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveChannels(tt.msg))
		})
	}
}

func TestResolveChannelsIsDeterministic(t *testing.T) {
	msg := &TaskStatusMessage{TaskID: "t1", DocumentID: "d1", UserID: "u1"}
	first := ResolveChannels(msg)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, ResolveChannels(msg))
	}
}

func TestChannelNames(t *testing.T) {
	assert.Equal(t, "task:abc", TaskChannel("abc"))
	assert.Equal(t, "document:d1", DocumentChannel("d1"))
	assert.Equal(t, "query:q1", QueryChannel("q1"))
	assert.Equal(t, "user:u1", UserChannel("u1"))
}
