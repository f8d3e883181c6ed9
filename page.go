package mcpwire

const (
	// MaxPageSize caps the number of items a single page may carry, regardless of
	// what a cursor requests.
	MaxPageSize = 100

	// DefaultPageSize is used when the caller supplies no limit of its own.
	DefaultPageSize = 50
)

// Page is one slice of a bounded, ordered collection. It is derived entirely from the
// source collection, the input cursor, and the default page size, and is never mutated
// after construction.
type Page[T any] struct {
	// Items holds the page's elements, in collection order.
	Items []T
	// NextCursor is the encoded continuation token, empty on the last page.
	NextCursor string
	// HasMore reports whether items remain beyond this page.
	HasMore bool
	// ReturnedCount is len(Items).
	ReturnedCount int
	// Offset and Limit are the effective values after clamping.
	Offset int
	Limit  int
	// TotalAvailable is the size of the source collection.
	TotalAvailable int
}

// Paginate slices items into a single page. An empty cursor requests the first page
// with defaultLimit items; otherwise the cursor's own offset and limit are used.
// Offsets saturate into [0, total] and limits clamp into [1, MaxPageSize], so
// over-paging is safe: a page whose offset already exceeds the total yields an empty
// item set with HasMore false, not an error. A corrupt cursor fails with
// ErrInvalidCursor.
func Paginate[T any](items []T, cursor string, defaultLimit int) (Page[T], error) {
	total := len(items)

	offset := 0
	limit := defaultLimit
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return Page[T]{}, err
		}
		offset = c.Offset
		limit = c.Limit
	}

	offset = min(max(offset, 0), total)
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	pageItems := items[offset:min(offset+limit, total)]

	nextOffset := offset + limit
	hasMore := nextOffset < total

	nextCursor := ""
	if hasMore {
		nextCursor = EncodeCursor(nextOffset, limit, total)
	}

	return Page[T]{
		Items:          pageItems,
		NextCursor:     nextCursor,
		HasMore:        hasMore,
		ReturnedCount:  len(pageItems),
		Offset:         offset,
		Limit:          limit,
		TotalAvailable: total,
	}, nil
}
