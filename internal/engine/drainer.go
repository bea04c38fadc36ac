package engine

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jaa/resource-fetcher/internal/progress"
	"github.com/rs/zerolog"
)

// drainer owns one worker output stream and reads it line by line until the
// stream ends. Progress lines go to the aggregator; everything else is kept
// in the tail buffer and, when set, copied to mirror.
type drainer struct {
	stream   Stream
	reader   io.Reader
	producer *Producer
	tail     *tailBuffer
	mirror   io.Writer
	logger   zerolog.Logger
}

type drainStats struct {
	Lines     int
	Events    int
	Malformed int
}

func (d *drainer) run() drainStats {
	defer d.producer.Done()

	stats := drainStats{}
	reader := bufio.NewReader(d.reader)
	for {
		raw, err := reader.ReadString('\n')
		if raw != "" {
			stats.Lines++
			d.handle(trimLineEnding(raw), &stats)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				d.logger.Debug().Err(err).Msg("stream read failed, treating as end of stream")
			}
			d.logger.Debug().
				Int("lines", stats.Lines).
				Int("events", stats.Events).
				Int("malformed", stats.Malformed).
				Msg("stream drained")
			return stats
		}
	}
}

func (d *drainer) handle(line string, stats *drainStats) {
	if !utf8.ValidString(line) {
		d.logger.Debug().Int("bytes", len(line)).Msg("discarding line that is not valid UTF-8")
		return
	}

	event, err := progress.Decode(line)
	switch {
	case err == nil:
		stats.Events++
		d.producer.Publish(event)
	case errors.Is(err, progress.ErrNotProgressLine):
		if d.tail != nil {
			d.tail.WriteLine(line)
		}
		if d.mirror != nil {
			_, _ = io.WriteString(d.mirror, line+"\n")
		}
	default:
		stats.Malformed++
		d.logger.Debug().Err(err).Str("line", line).Msg("discarding malformed progress line")
	}
}

func trimLineEnding(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
