package gnss

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"i4.energy/across/drivetest/logfile"
)

// StreamName names the GNSS log in published records.
const StreamName = "gnss"

// Appender is the log the stream writes to. *logfile.Writer implements it.
type Appender interface {
	Append(line string) error
}

// Sink receives every record after it reached the log.
type Sink interface {
	PublishRecord(ctx context.Context, rec logfile.Record) error
}

// Stream decodes frames from a receiver and appends one line per frame.
type Stream struct {
	r      io.Reader
	log    Appender
	logger *slog.Logger
	sinks  []Sink
	now    func() time.Time

	frames  atomic.Int64
	dropped atomic.Int64
}

type Option func(*Stream)

func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

func WithSinks(sinks ...Sink) Option {
	return func(s *Stream) { s.sinks = append(s.sinks, sinks...) }
}

// WithClock replaces time.Now for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) { s.now = now }
}

func NewStream(r io.Reader, log Appender, opts ...Option) *Stream {
	s := &Stream{
		r:      r,
		log:    log,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Frames returns the number of frames logged.
func (s *Stream) Frames() int64 { return s.frames.Load() }

// Dropped returns the number of valid frames whose payload did not decode.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

// Run reads until the reader fails or ctx is cancelled. It returns
// ctx.Err() on cancellation and io.ErrUnexpectedEOF when the receiver
// stream ends.
func (s *Stream) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(ctxReader{ctx: ctx, r: s.r})
	scanner.Buffer(make([]byte, 0, 4096), MaxFrameLen)
	scanner.Split(Splitter)

	for scanner.Scan() {
		frame, err := ParseFrame(scanner.Bytes())
		if err != nil {
			continue
		}
		msg, err := Decode(frame)
		if err != nil {
			s.dropped.Add(1)
			s.logger.Debug("undecodable frame", "message", Name(frame.Class, frame.ID), "error", err)
			continue
		}

		ts := s.now()
		rec := logfile.Record{Stream: StreamName, Time: ts, Line: logfile.Stamp(ts, msg.String())}
		if err := s.log.Append(rec.Line); err != nil {
			return fmt.Errorf("append gnss record: %w", err)
		}
		s.frames.Add(1)

		for _, sink := range s.sinks {
			if err := sink.PublishRecord(ctx, rec); err != nil {
				s.logger.Warn("publish gnss record", "error", err)
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read gnss stream: %w", err)
	}
	return io.ErrUnexpectedEOF
}

// ctxReader turns the (0, nil) reads of a serial port with a read timeout
// into a blocking read that observes ctx.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	for {
		if err := c.ctx.Err(); err != nil {
			return 0, err
		}
		n, err := c.r.Read(p)
		if n > 0 || err != nil {
			if errors.Is(err, io.EOF) && n > 0 {
				return n, nil
			}
			return n, err
		}
	}
}
