package agent

import "strings"

// ApprovalSentinel is the literal prefix the critic uses to approve a frame.
const ApprovalSentinel = "Approved"

// Verdict is the binary outcome of a critique.
type Verdict string

const (
	VerdictApproved Verdict = "approved"
	VerdictRejected Verdict = "rejected"
)

// Critique is either an approval with its explanation or a rejection carrying
// opaque feedback for the script generator.
type Critique struct {
	Verdict Verdict
	Text    string
}

// Approved reports whether the critique approves the frame.
func (c Critique) Approved() bool {
	return c.Verdict == VerdictApproved
}

// ParseCritique is the single place where free-text critic output becomes a verdict:
// a reply approves iff, after leading whitespace, it starts with ApprovalSentinel.
func ParseCritique(reply string) Critique {
	trimmed := strings.TrimSpace(reply)
	if strings.HasPrefix(trimmed, ApprovalSentinel) {
		return Critique{Verdict: VerdictApproved, Text: trimmed}
	}
	return Critique{Verdict: VerdictRejected, Text: trimmed}
}
