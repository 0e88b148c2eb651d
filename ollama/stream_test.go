package ollama

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns its chunks one Read call at a time, mimicking slow
// network delivery with arbitrary record boundaries.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n < len(r.chunks[0]) {
		r.chunks[0] = r.chunks[0][n:]
	} else {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, r io.Reader) ([]chatResponse, error) {
	t.Helper()
	var out []chatResponse
	for resp, err := range decodeStream(r, slog.Default()) {
		if err != nil {
			return out, err
		}
		out = append(out, resp)
	}
	return out, nil
}

func TestDecodeStream_SplitAcrossChunks(t *testing.T) {
	t.Parallel()
	r := &chunkReader{chunks: [][]byte{
		[]byte("{\"message\":{\"content\":\"a\"}}\n{\"message\":{\"content\":\"b\""),
		[]byte("}}\n"),
	}}
	got, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Message.Content)
	assert.Equal(t, "b", got[1].Message.Content)
}

func TestDecodeStream_MalformedLineSkipped(t *testing.T) {
	t.Parallel()
	r := &chunkReader{chunks: [][]byte{
		[]byte("{\"message\":{\"content\":\"before\"}}\nnot json at all\n{\"message\":{\"content\":\"after\"},\"done\":true}\n"),
	}}
	got, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "before", got[0].Message.Content)
	assert.Equal(t, "after", got[1].Message.Content)
	assert.True(t, got[1].Done)
}

func TestDecodeStream_BlankLinesIgnored(t *testing.T) {
	t.Parallel()
	r := &chunkReader{chunks: [][]byte{
		[]byte("\n\n{\"message\":{\"content\":\"x\"}}\n   \n"),
	}}
	got, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestDecodeStream_TrailingPartialDiscarded(t *testing.T) {
	t.Parallel()
	r := &chunkReader{chunks: [][]byte{
		[]byte("{\"message\":{\"content\":\"full\"}}\n{\"message\":{\"content\":\"trunc"),
	}}
	got, err := collect(t, r)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "full", got[0].Message.Content)
}

func TestDecodeStream_ReadErrorIsTerminal(t *testing.T) {
	t.Parallel()
	cause := errors.New("connection reset")
	r := &chunkReader{
		chunks: [][]byte{[]byte("{\"message\":{\"content\":\"ok\"}}\n")},
		err:    cause,
	}
	got, err := collect(t, r)
	require.Len(t, got, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
}

func TestDecodeStream_ConsumerStopsEarly(t *testing.T) {
	t.Parallel()
	r := &chunkReader{chunks: [][]byte{
		[]byte("{\"message\":{\"content\":\"1\"}}\n{\"message\":{\"content\":\"2\"}}\n"),
	}}
	var seen int
	for range decodeStream(r, slog.Default()) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestDecodeStream_Empty(t *testing.T) {
	t.Parallel()
	got, err := collect(t, &chunkReader{})
	require.NoError(t, err)
	assert.Empty(t, got)
}
