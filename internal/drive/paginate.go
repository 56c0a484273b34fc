package drive

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync/atomic"
)

// Page is one batch of a paginated listing. Next is the continuation cursor
// for the following page, empty on the last page.
type Page struct {
	Entries []Entry
	Next    string
}

// PageFetcher fetches the page addressed by cursor. The empty cursor means
// the first page of the original query.
type PageFetcher func(ctx context.Context, cursor string) (Page, error)

// errSequenceConsumed is yielded when a listing is ranged over a second time.
var errSequenceConsumed = errors.New("drive: listing already consumed; issue the query again")

// Paginate drives fetch until a page arrives without a continuation cursor,
// yielding entries in the order received. Each cursor is passed to fetch
// exactly once. A page that hands back the cursor it was fetched with is a
// decode failure, not an infinite loop. The returned sequence is single-use.
func Paginate(ctx context.Context, fetch PageFetcher, logger *slog.Logger) iter.Seq2[Entry, error] {
	if logger == nil {
		logger = slog.Default()
	}

	var started atomic.Bool

	return func(yield func(Entry, error) bool) {
		if !started.CompareAndSwap(false, true) {
			yield(Entry{}, errSequenceConsumed)
			return
		}

		cursor := ""
		pageNum := 1
		total := 0

		for {
			page, err := fetch(ctx, cursor)
			if err != nil {
				yield(Entry{}, err)
				return
			}

			logger.Debug("fetched listing page",
				slog.Int("page", pageNum),
				slog.Int("count", len(page.Entries)),
				slog.Bool("more", page.Next != ""),
			)

			for _, e := range page.Entries {
				if !yield(e, nil) {
					return
				}
			}

			total += len(page.Entries)

			if page.Next == "" {
				logger.Debug("listing complete", slog.Int("pages", pageNum), slog.Int("total", total))
				return
			}

			if page.Next == cursor {
				yield(Entry{}, &DecodeError{What: "listing page", Err: errors.New("continuation cursor repeated")})
				return
			}

			cursor = page.Next
			pageNum++
		}
	}
}
