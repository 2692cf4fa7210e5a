package stream

import "context"

// Source is a pull-based producer of items. Next returns ok=false once the
// source is exhausted; a non-nil error ends the stream.
type Source interface {
	Next(ctx context.Context) (item any, ok bool, err error)
}

// GeneratorFunc adapts a pull function to the Source interface.
type GeneratorFunc func(ctx context.Context) (any, bool, error)

func (f GeneratorFunc) Next(ctx context.Context) (any, bool, error) {
	return f(ctx)
}

// sliceSource yields a finite in-memory collection.
type sliceSource struct {
	items []any
	pos   int
}

// FromSlice creates a Source over a finite in-memory collection.
func FromSlice(items []any) Source {
	return &sliceSource{items: items}
}

func (s *sliceSource) Next(ctx context.Context) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.pos >= len(s.items) {
		return nil, false, nil
	}
	item := s.items[s.pos]
	s.pos++
	return item, true, nil
}

// channelSource adapts an already-compatible external feed.
type channelSource struct {
	ch <-chan any
}

// FromChannel creates a Source that drains an external channel until it
// closes.
func FromChannel(ch <-chan any) Source {
	return &channelSource{ch: ch}
}

func (s *channelSource) Next(ctx context.Context) (any, bool, error) {
	select {
	case item, ok := <-s.ch:
		if !ok {
			return nil, false, nil
		}
		return item, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
