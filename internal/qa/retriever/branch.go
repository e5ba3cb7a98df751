package retriever

// Branch selects the retrieval strategy for a question
type Branch string

const (
	// BranchGeneral answers from the initial candidate pool
	BranchGeneral Branch = "general"

	// BranchSingleUser replaces the pool with an exhaustive per-user search
	BranchSingleUser Branch = "single_user"

	// BranchMultiUser merges per-user searches for every mentioned user
	BranchMultiUser Branch = "multi_user"

	// BranchDominantUser narrows to the user dominating the initial results
	BranchDominantUser Branch = "dominant_user"
)

// DecideBranch picks the retrieval strategy from the mention count, whether
// the question carries user-directed intent wording, and the share of the
// initial results held by the most frequent author.
func DecideBranch(mentionCount int, intentPresent bool, dominantRatio float64, dominantThreshold float64) Branch {
	switch {
	case mentionCount >= 2 && intentPresent:
		return BranchMultiUser
	case mentionCount == 1 && intentPresent:
		return BranchSingleUser
	case mentionCount == 0 && intentPresent && dominantRatio > dominantThreshold:
		return BranchDominantUser
	default:
		return BranchGeneral
	}
}
