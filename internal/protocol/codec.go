package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrame bounds a single inbound frame.
const DefaultMaxFrame = 1 << 20

// ErrFrameTooLarge is returned by ReadFrame when a line exceeds the limit. The
// stream cannot be resynchronized after it, so callers close the connection.
var ErrFrameTooLarge = errors.New("frame too large")

// Reader splits a stream into newline-terminated frames.
type Reader struct {
	br    *bufio.Reader
	limit int
}

// NewReader returns a Reader; limit <= 0 selects DefaultMaxFrame.
func NewReader(r io.Reader, limit int) *Reader {
	if limit <= 0 {
		limit = DefaultMaxFrame
	}
	return &Reader{br: bufio.NewReader(r), limit: limit}
}

// ReadFrame returns the next non-blank frame without its line terminator.
// An unterminated final line before EOF is returned as a frame.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (r *Reader) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.br.ReadSlice('\n')
		if len(buf)+len(chunk) > r.limit {
			return nil, ErrFrameTooLarge
		}
		buf = append(buf, chunk...)
		switch {
		case err == nil:
			return buf, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(bytes.TrimSpace(buf)) > 0:
			return buf, nil
		default:
			return nil, err
		}
	}
}

// ReadJSON reads one frame into v.
func (r *Reader) ReadJSON(v any) error {
	frame, err := r.ReadFrame()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(frame, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// Writer emits one JSON value per line and flushes after each.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{bw: bufio.NewWriter(w)} }

// WriteJSON writes v followed by '\n' and flushes.
func (w *Writer) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	if err := w.bw.WriteByte('\n'); err != nil {
		return err
	}
	return w.bw.Flush()
}
