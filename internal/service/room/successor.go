package room

import "fmt"

// SuccessorPolicy picks the next host when the host leaves.
type SuccessorPolicy string

const (
	SuccessorLongestConnected SuccessorPolicy = "longest-connected"
	SuccessorMostRecent       SuccessorPolicy = "most-recent"
)

func ParseSuccessorPolicy(s string) (SuccessorPolicy, error) {
	switch p := SuccessorPolicy(s); p {
	case SuccessorLongestConnected, SuccessorMostRecent:
		return p, nil
	}

	return "", fmt.Errorf("unknown successor policy %q", s)
}

// pick returns the successor among memberIDs, which are ordered by join
// sequence. It returns "" when nobody is left.
func (p SuccessorPolicy) pick(memberIDs []string) string {
	if len(memberIDs) == 0 {
		return ""
	}

	if p == SuccessorMostRecent {
		return memberIDs[len(memberIDs)-1]
	}

	return memberIDs[0]
}
