package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainDriver serves GetMessage from a fixed row set; everything else panics
// through the embedded nil Driver.
type chainDriver struct {
	Driver
	rows map[int64]*Message
}

func (d *chainDriver) GetMessage(_ context.Context, _, messageID int64) (*Message, error) {
	return d.rows[messageID], nil
}

func chainStore(rows ...*Message) *Store {
	byID := make(map[int64]*Message, len(rows))
	for _, row := range rows {
		byID[row.MessageID] = row
	}
	return &Store{driver: &chainDriver{rows: byID}}
}

func TestFileFromChain(t *testing.T) {
	ctx := context.Background()

	t.Run("trigger itself carries the file", func(t *testing.T) {
		st := chainStore(
			&Message{MessageID: 1, MediaType: MediaPhoto, MediaFileID: "photo-1"},
		)
		got, err := st.FileFromChain(ctx, 1, 1, MediaPhoto, 3)
		require.NoError(t, err)
		assert.Equal(t, "photo-1", got)
	})

	t.Run("walks the reply chain to the nearest match", func(t *testing.T) {
		st := chainStore(
			&Message{MessageID: 1, MediaType: MediaPhoto, MediaFileID: "photo-1"},
			&Message{MessageID: 2, Text: "middle", ReplyToMessageID: 1},
			&Message{MessageID: 3, Text: "trigger", ReplyToMessageID: 2},
		)
		got, err := st.FileFromChain(ctx, 1, 3, MediaPhoto, 3)
		require.NoError(t, err)
		assert.Equal(t, "photo-1", got)
	})

	t.Run("skips media of the wrong type", func(t *testing.T) {
		st := chainStore(
			&Message{MessageID: 1, MediaType: MediaPhoto, MediaFileID: "photo-1"},
			&Message{MessageID: 2, MediaType: MediaOther, MediaFileID: "doc-2", ReplyToMessageID: 1},
			&Message{MessageID: 3, Text: "trigger", ReplyToMessageID: 2},
		)

		got, err := st.FileFromChain(ctx, 1, 3, MediaPhoto, 3)
		require.NoError(t, err)
		assert.Equal(t, "photo-1", got)

		got, err = st.FileFromChain(ctx, 1, 3, MediaOther, 3)
		require.NoError(t, err)
		assert.Equal(t, "doc-2", got)
	})

	t.Run("depth bounds the walk", func(t *testing.T) {
		st := chainStore(
			&Message{MessageID: 1, MediaType: MediaPhoto, MediaFileID: "photo-1"},
			&Message{MessageID: 2, Text: "a", ReplyToMessageID: 1},
			&Message{MessageID: 3, Text: "b", ReplyToMessageID: 2},
		)
		got, err := st.FileFromChain(ctx, 1, 3, MediaPhoto, 1)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing rows terminate the walk", func(t *testing.T) {
		st := chainStore(
			&Message{MessageID: 3, Text: "trigger", ReplyToMessageID: 99},
		)
		got, err := st.FileFromChain(ctx, 1, 3, MediaPhoto, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("chain without media", func(t *testing.T) {
		st := chainStore(
			&Message{MessageID: 1, Text: "root"},
			&Message{MessageID: 2, Text: "trigger", ReplyToMessageID: 1},
		)
		got, err := st.FileFromChain(ctx, 1, 2, MediaPhoto, 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestTruncateReply(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLength int
		want      string
	}{
		{
			name:      "short text unchanged",
			text:      "hello",
			maxLength: 30,
			want:      "hello",
		},
		{
			name:      "empty text",
			text:      "",
			maxLength: 30,
			want:      "",
		},
		{
			name:      "long text keeps head and tail",
			text:      "The quick brown fox jumped over the lazy dog",
			maxLength: 30,
			want:      "The quick ... lazy dog",
		},
		{
			name:      "newlines flattened",
			text:      "one\ntwo",
			maxLength: 30,
			want:      "one two",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateReply(tt.text, tt.maxLength))
		})
	}
}
