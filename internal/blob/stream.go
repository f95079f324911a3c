// Package blob is the node's chunked blob-assembly collaborator: concatenating an ordered set of blob_piece_v1 payloads into a
// single writer without holding the whole object in memory, using
// io.CopyBuffer with one reusable ChunkSize buffer. Temp files and the
// final rename are left to the caller.
package blob

import "io"

// ChunkSize bounds how much of any one piece is held in memory at a time.
const ChunkSize = 32 * 1024

// CopyPieces streams each reader in pieces into dst in order, using a
// single reusable ChunkSize buffer, and returns the total bytes written.
func CopyPieces(dst io.Writer, pieces []io.Reader) (int64, error) {
	buf := make([]byte, ChunkSize)
	var total int64
	for _, piece := range pieces {
		n, err := io.CopyBuffer(dst, piece, buf)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
