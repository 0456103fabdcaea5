package query

import "fmt"

// Error codes for cluster change requests. The codes are stable and exposed
// to callers so interactive frontends can map them to user feedback.
const (
	// CodeNegativeNode: the chosen voxel id is negative.
	CodeNegativeNode = 1
	// CodeNoCluster: the chosen voxel lies in none of the current clusters.
	CodeNoCluster = 2
	// CodeNotAdmissible: the chosen cluster is not an admissible
	// supra-threshold cluster.
	CodeNotAdmissible = 3
	// CodeBadTDPChange: the requested TDP change is zero or outside (-1,1).
	CodeBadTDPChange = 4
	// CodeAtExtremum: the cluster already sits at the reachable TDP
	// extremum in the requested direction.
	CodeAtExtremum = 5
	// CodeReductionUnreachable: the requested TDP reduction exceeds the
	// distance to the minimum attainable bound.
	CodeReductionUnreachable = 6
	// CodeAugmentationUnreachable: the requested TDP augmentation exceeds
	// the distance to the maximum attainable bound.
	CodeAugmentationUnreachable = 7
	// CodeNodeOutsideResult: no admissible cluster satisfying the change
	// still covers the chosen voxel.
	CodeNodeOutsideResult = 8
)

// QueryError describes a rejected cluster change request. It is a value
// type: errors with the same code and message compare equal.
type QueryError struct {
	Code    int
	Message string
}

func (e QueryError) Error() string {
	return fmt.Sprintf("query: change rejected (code %d): %s", e.Code, e.Message)
}

func errNegativeNode() QueryError {
	return QueryError{CodeNegativeNode, "voxel id must be non-negative"}
}

func errNoCluster(v int) QueryError {
	return QueryError{CodeNoCluster, fmt.Sprintf("no cluster contains voxel %d", v)}
}

func errNotAdmissible(rep int) QueryError {
	return QueryError{CodeNotAdmissible, fmt.Sprintf("cluster with representative %d is not admissible", rep)}
}

func errBadTDPChange(tdpchg float64) QueryError {
	return QueryError{CodeBadTDPChange, fmt.Sprintf("TDP change %g must be non-zero and within (-1,1)", tdpchg)}
}

func errAtExtremum(curtdp float64) QueryError {
	return QueryError{CodeAtExtremum, fmt.Sprintf("no further changes can be attained at TDP %.10f", curtdp)}
}

func errReductionUnreachable(tdpchg, mintdp, curtdp float64) QueryError {
	return QueryError{CodeReductionUnreachable,
		fmt.Sprintf("a TDP reduction of %.5f cannot be achieved: min(TDP) = %.10f, current TDP = %.10f",
			-tdpchg, mintdp, curtdp)}
}

func errAugmentationUnreachable(tdpchg, maxtdp, curtdp float64) QueryError {
	return QueryError{CodeAugmentationUnreachable,
		fmt.Sprintf("a TDP augmentation of %.5f cannot be achieved: max(TDP) = %.10f, current TDP = %.10f",
			tdpchg, maxtdp, curtdp)}
}

func errNodeOutsideResult(v int) QueryError {
	return QueryError{CodeNodeOutsideResult,
		fmt.Sprintf("no admissible cluster satisfying the change covers voxel %d", v)}
}
