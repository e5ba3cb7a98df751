package analyzer

import (
	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
)

// Factor weights. The four contributions sum to at most 1.0.
const (
	weightSourceCount      = 0.3
	weightRerankerQuality  = 0.3
	weightQuerySpecificity = 0.2
	weightConsistency      = 0.2
)

// ConfidenceScore combines retrieval and ranking signals into a single
// reliability estimate in [0,1] plus its per-factor breakdown.
func ConfidenceScore(numSources int, avgRerankerScore float64, queryType types.QueryType, sourcesFromSpecificUser bool) (float64, map[string]float64) {
	factors := make(map[string]float64, 4)

	// Factor 1: source count, bucketed
	var sourceFactor float64
	switch {
	case numSources >= 10:
		sourceFactor = 1.0
	case numSources >= 5:
		sourceFactor = 0.8
	case numSources >= 3:
		sourceFactor = 0.6
	case numSources >= 2:
		sourceFactor = 0.4
	default:
		sourceFactor = 0.2
	}
	factors["source_count"] = sourceFactor * weightSourceCount

	// Factor 2: average reranker score, capped at 1.0
	rerankerFactor := avgRerankerScore
	if rerankerFactor > 1.0 {
		rerankerFactor = 1.0
	}
	factors["reranker_quality"] = rerankerFactor * weightRerankerQuality

	// Factor 3: query specificity
	var queryFactor float64
	switch {
	case queryType == types.QueryTypeUserSpecific && sourcesFromSpecificUser:
		queryFactor = 0.95
	case queryType == types.QueryTypeUserSpecific:
		queryFactor = 0.7
	case queryType == types.QueryTypeFactual:
		queryFactor = 0.75
	case queryType == types.QueryTypeComparison:
		queryFactor = 0.8
	default:
		queryFactor = 0.6
	}
	factors["query_specificity"] = queryFactor * weightQuerySpecificity

	// Factor 4: consistency; degraded when sources are too few to agree
	consistencyFactor := 0.8
	if numSources < 2 {
		consistencyFactor = 0.4
	}
	factors["consistency"] = consistencyFactor * weightConsistency

	confidence := 0.0
	for _, v := range factors {
		confidence += v
	}

	if confidence < 0.0 {
		confidence = 0.0
	}
	if confidence > 1.0 {
		confidence = 1.0
	}

	return confidence, factors
}
