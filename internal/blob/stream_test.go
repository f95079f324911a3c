package blob_test

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquadoggo-go/aquadoggo/internal/blob"
)

func TestCopyPiecesConcatenatesInOrder(t *testing.T) {
	pieces := []io.Reader{
		strings.NewReader("hello, "),
		strings.NewReader("world"),
		strings.NewReader("!"),
	}
	var dst bytes.Buffer

	n, err := blob.CopyPieces(&dst, pieces)
	require.NoError(t, err)
	assert.Equal(t, int64(13), n)
	assert.Equal(t, "hello, world!", dst.String())
}

func TestCopyPiecesLargerThanChunkSize(t *testing.T) {
	piece := bytes.Repeat([]byte("x"), blob.ChunkSize*3+17)
	var dst bytes.Buffer

	n, err := blob.CopyPieces(&dst, []io.Reader{bytes.NewReader(piece)})
	require.NoError(t, err)
	assert.Equal(t, int64(len(piece)), n)
	assert.Equal(t, piece, dst.Bytes())
}

func TestCopyPiecesEmptyInput(t *testing.T) {
	var dst bytes.Buffer
	n, err := blob.CopyPieces(&dst, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, 0, dst.Len())
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, assertErr }

var assertErr = io.ErrUnexpectedEOF

func TestCopyPiecesStopsOnError(t *testing.T) {
	pieces := []io.Reader{strings.NewReader("ok"), errReader{}, strings.NewReader("unreached")}
	var dst bytes.Buffer

	n, err := blob.CopyPieces(&dst, pieces)
	assert.ErrorIs(t, err, assertErr)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "ok", dst.String())
}
