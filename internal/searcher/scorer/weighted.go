package scorer

const (
	weightFreq     = 0.1
	weightDensity  = 0.1
	weightPosition = 0.4
	weightCoverage = 0.4
)

// WeightedBlend favours proximity and breadth of match over raw frequency:
//
//	0.1·freq/maxFreq + 0.1·density/maxDensity + 0.4·positionScore + 0.4·coverage
type WeightedBlend struct{}

func (WeightedBlend) Name() string { return NameWeighted }

func (WeightedBlend) Score(q Query, cands []*Candidate) {
	var maxFreq, maxDensity float64
	for _, c := range cands {
		maxFreq = max(maxFreq, float64(c.Freq))
		maxDensity = max(maxDensity, c.Density)
	}
	for _, c := range cands {
		c.PositionScore = PositionScore(c.Positions())
		c.Coverage = Coverage(len(c.Words), q.Tokens)
		c.Score = weightFreq*ratio(float64(c.Freq), maxFreq) +
			weightDensity*ratio(c.Density, maxDensity) +
			weightPosition*c.PositionScore +
			weightCoverage*c.Coverage
	}
}
