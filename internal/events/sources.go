package events

import (
	"bufio"
	"context"
	"errors"
	"io"
	"time"
)

// Tick is one periodic timer event.
type Tick struct {
	Seq uint64
	At  time.Time
}

// RunTicker pushes a Tick into stream every interval until ctx is cancelled.
func RunTicker(ctx context.Context, interval time.Duration, stream *Stream[Tick]) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			seq++
			stream.Push(Tick{Seq: seq, At: now})
		}
	}
}

// RunReader pushes every rune read from r into stream. It returns nil on
// EOF or cancellation and the read error otherwise. A blocked Read is only
// noticed as cancelled once it returns.
func RunReader(ctx context.Context, r io.Reader, stream *Stream[rune]) error {
	br := bufio.NewReader(r)
	for {
		if ctx.Err() != nil {
			return nil
		}
		ch, _, err := br.ReadRune()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		stream.Push(ch)
	}
}
