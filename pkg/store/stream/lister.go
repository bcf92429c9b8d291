package stream

import (
	"context"
	"errors"
	"io"

	"github.com/marmos91/dittostore/pkg/store"
)

// PageContext is the state shared between a PageLister and its backend.
//
// The backend reads Token to know where to resume, pushes the entries of
// the fetched page, stores the next continuation in Token and sets Done
// once the last page was fetched.
type PageContext struct {
	// Token is the opaque continuation returned by the previous page.
	Token string
	// Done is set by the backend after the last page.
	Done bool

	entries []store.Entry
}

// Push queues one entry.
func (c *PageContext) Push(entry store.Entry) {
	c.entries = append(c.entries, entry)
}

// Pending returns the number of queued entries.
func (c *PageContext) Pending() int {
	return len(c.entries)
}

func (c *PageContext) pop() (store.Entry, bool) {
	if len(c.entries) == 0 {
		return store.Entry{}, false
	}
	entry := c.entries[0]
	c.entries[0] = store.Entry{}
	c.entries = c.entries[1:]
	return entry, true
}

// PageList is the primitive of paginated listings.
type PageList interface {
	// NextPage fetches one page into ctx. A page may be empty without
	// being the last.
	NextPage(ctx context.Context, pc *PageContext) error
}

// PageLister turns a PageList primitive into a store.Lister.
//
// A NotFound from the backend ends the listing without error: a directory
// removed while being listed, or never created, lists as empty.
type PageLister struct {
	pl PageList
	pc PageContext
}

// NewPageLister wraps pl.
func NewPageLister(pl PageList) *PageLister {
	return &PageLister{pl: pl}
}

// Next returns the next entry or io.EOF.
func (l *PageLister) Next(ctx context.Context) (store.Entry, error) {
	for {
		if entry, ok := l.pc.pop(); ok {
			return entry, nil
		}
		if l.pc.Done {
			return store.Entry{}, io.EOF
		}

		if err := l.pl.NextPage(ctx, &l.pc); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				l.pc.Done = true
				continue
			}
			return store.Entry{}, err
		}
	}
}

// Collect drains a lister.
func Collect(ctx context.Context, l store.Lister) ([]store.Entry, error) {
	var out []store.Entry
	for {
		entry, err := l.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
}

// SliceLister lists a precomputed set of entries.
type SliceLister struct {
	entries []store.Entry
}

// NewSliceLister lists entries in order.
func NewSliceLister(entries []store.Entry) *SliceLister {
	return &SliceLister{entries: entries}
}

// Next returns the next entry or io.EOF.
func (s *SliceLister) Next(context.Context) (store.Entry, error) {
	if len(s.entries) == 0 {
		return store.Entry{}, io.EOF
	}
	entry := s.entries[0]
	s.entries = s.entries[1:]
	return entry, nil
}
