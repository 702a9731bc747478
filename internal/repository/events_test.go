package repository

import "testing"

func TestDeliverInvalidation(t *testing.T) {
	t.Run("delivers when the buffer has room", func(t *testing.T) {
		invalidations := make(chan int64, 1)

		deliverInvalidation(invalidations, 7)

		if got := <-invalidations; got != 7 {
			t.Fatalf("received %d, want 7", got)
		}
	})

	t.Run("collapses a same-line duplicate", func(t *testing.T) {
		invalidations := make(chan int64, 1)

		deliverInvalidation(invalidations, 7)
		deliverInvalidation(invalidations, 7)

		if got := <-invalidations; got != 7 {
			t.Fatalf("received %d, want 7", got)
		}
		select {
		case extra := <-invalidations:
			t.Fatalf("unexpected extra delivery %d", extra)
		default:
		}
	})

	t.Run("degrades to InvalidateAll when lines differ", func(t *testing.T) {
		invalidations := make(chan int64, 1)

		// A second line's invalidation arriving while the first still sits
		// unread must not vanish; the merged signal flushes every line.
		deliverInvalidation(invalidations, 7)
		deliverInvalidation(invalidations, 8)

		if got := <-invalidations; got != InvalidateAll {
			t.Fatalf("received %d, want InvalidateAll", got)
		}
	})
}
