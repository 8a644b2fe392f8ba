package pdf

import "fmt"

// Attempt is one step of an ordered extraction waterfall.
type Attempt[T any] struct {
	Name string
	Run  func() (T, error)
}

// Waterfall runs attempts in order and returns the first success,
// aggregating every failure into the returned error when all attempts
// fail. Grounded on spec.md's "Exceptions as control flow" REDESIGN
// FLAG (§9) and toc_extractor.py's `_extract_hybrid` fold-and-return
// pattern, which the text/table/formula extractors share structurally.
func Waterfall[T any](attempts []Attempt[T]) (T, string, error) {
	var zero T
	var failures []string
	for _, a := range attempts {
		result, err := a.Run()
		if err == nil {
			return result, a.Name, nil
		}
		failures = append(failures, fmt.Sprintf("%s: %v", a.Name, err))
	}
	return zero, "", fmt.Errorf("pdf: all extractors failed: %v", failures)
}
