// Package cursor derives "show more" slices from a stored ordered id list
// and a shown-count offset, without re-running retrieval.
package cursor

// Next returns the next page of ids and the updated shown count. The
// client-supplied offset is re-clamped server side: callers must not be
// trusted to keep shownCount within bounds. An exhausted cursor yields an
// empty slice, which is terminal, not an error. Repeated calls with the
// same offset return the same slice.
func Next(orderedIDs []string, shownCount, pageSize int) ([]string, int) {
	if shownCount < 0 {
		shownCount = 0
	}
	if shownCount > len(orderedIDs) {
		shownCount = len(orderedIDs)
	}
	if pageSize <= 0 {
		return nil, shownCount
	}

	end := shownCount + pageSize
	if end > len(orderedIDs) {
		end = len(orderedIDs)
	}

	slice := orderedIDs[shownCount:end]
	if len(slice) == 0 {
		return nil, shownCount
	}
	return slice, end
}
