package resolve

// ScoringPolicy combines the extraction confidence of a loose reference
// with the score of the match that resolved it.
type ScoringPolicy func(extraction, match float64) float64

// ProductScoring multiplies both values. An unset extraction confidence
// counts as certain.
func ProductScoring(extraction, match float64) float64 {
	if extraction <= 0 {
		extraction = 1
	}
	return extraction * match
}
