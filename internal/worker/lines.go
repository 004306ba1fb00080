package worker

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

const readBufferSize = 64 * 1024

// readLines splits r into newline-terminated records and calls emit for each
// non-empty one, without the line terminator. Records longer than limit bytes
// are skipped whole and reported through oversize. A trailing record without
// a newline is emitted at EOF.
func readLines(r io.Reader, limit int, emit func([]byte), oversize func(int)) error {
	br := bufio.NewReaderSize(r, readBufferSize)

	var (
		buf      []byte
		overflow bool
		skipped  int
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if overflow {
			skipped += len(chunk)
		} else if len(buf)+len(bytes.TrimRight(chunk, "\r\n")) > limit {
			overflow = true
			skipped = len(buf) + len(chunk)
			buf = buf[:0]
		} else {
			buf = append(buf, chunk...)
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if overflow {
			if oversize != nil {
				oversize(skipped)
			}
			overflow = false
			skipped = 0
		} else if line := bytes.TrimRight(buf, "\r\n"); len(line) > 0 {
			emit(bytes.Clone(line))
		}
		buf = buf[:0]

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
