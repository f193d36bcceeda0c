package shell

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sourcegraph/conc/panics"

	"github.com/zjrosen/xh/internal/log"
)

// DefaultBufferSize is the line reader buffer size when none is set.
const DefaultBufferSize = 4096

// ReadOptions tunes ReadStream.
type ReadOptions struct {
	// BufferSize is the bufio.Reader size. Lines longer than the buffer
	// are still delivered whole.
	BufferSize int

	// Decoder decodes each line. Nil means UTF-8.
	Decoder *Decoder

	// Stream names the source in logs ("stdout", "stderr").
	Stream string

	// OnLine, when set, observes every line before the consumer sees it.
	OnLine func(Text)
}

// lineReader splits a stream into decoded lines.
type lineReader struct {
	r   *bufio.Reader
	dec *Decoder
}

func newLineReader(src io.Reader, opts ReadOptions) *lineReader {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &lineReader{r: bufio.NewReaderSize(src, size), dec: opts.Decoder}
}

// next returns the next line with its terminator. ok is false at end of
// stream; err is set only for failures other than EOF or a closed pipe.
// A final unterminated fragment is returned as a line.
func (lr *lineReader) next() (line Text, ok bool, err error) {
	b, readErr := lr.r.ReadBytes('\n')
	if len(b) > 0 {
		line = lr.dec.Decode(b)
		ok = true
	}
	if readErr != nil && !errors.Is(readErr, io.EOF) && !errors.Is(readErr, os.ErrClosed) {
		err = fmt.Errorf("%w: %w", ErrStreamRead, readErr)
	}
	return line, ok, err
}

// ReadStream reads src line by line and hands each line to consumer until
// the stream ends or the consumer returns Stop. src is closed exactly once
// before ReadStream returns. A panicking consumer ends reading and the panic
// comes back as an error wrapping ErrConsumerPanic.
func ReadStream(src io.ReadCloser, consumer Consumer, stdin io.WriteCloser, h *Handle, opts ReadOptions) (err error) {
	defer func() {
		if cerr := src.Close(); cerr != nil && !errors.Is(cerr, os.ErrClosed) {
			log.Debug(log.CatStream, "close failed", "stream", opts.Stream, "error", cerr)
		}
	}()

	lr := newLineReader(src, opts)
	lines := 0
	for {
		line, ok, readErr := lr.next()
		if ok {
			lines++
			if opts.OnLine != nil {
				opts.OnLine(line)
			}

			action := Continue
			recovered := panics.Try(func() {
				action = consumer.call(line, stdin, h)
			})
			if recovered != nil {
				perr := fmt.Errorf("%w: %w", ErrConsumerPanic, recovered.AsError())
				log.ErrorErr(log.CatStream, "consumer panicked", perr, "stream", opts.Stream, "line", lines)
				return perr
			}
			if action == Stop {
				log.Debug(log.CatStream, "consumer stopped reading", "stream", opts.Stream, "lines", lines)
				return nil
			}
		}

		if readErr != nil {
			log.Debug(log.CatStream, "read failed, treating as end of stream", "stream", opts.Stream, "error", readErr)
			return readErr
		}
		if !ok {
			log.Debug(log.CatStream, "end of stream", "stream", opts.Stream, "lines", lines)
			return nil
		}
	}
}
