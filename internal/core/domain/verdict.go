package domain

// Decision is the outcome of fraud screening.
type Decision string

const (
	DecisionAllowed        Decision = "allowed"
	DecisionStepUpRequired Decision = "step_up_required"
	DecisionBlocked        Decision = "blocked"
)

// Reason codes attached to non-allowed verdicts and security events.
const (
	ReasonOverLimit     = "over_limit"
	ReasonHighFrequency = "high_frequency"
	ReasonNewRecipient  = "new_recipient"
	ReasonStepUpInvalid = "step_up_invalid"
)

type Verdict struct {
	Decision Decision `json:"decision"`
	Reason   string   `json:"reason,omitempty"`
}

func Allowed() Verdict {
	return Verdict{Decision: DecisionAllowed}
}

func (v Verdict) IsAllowed() bool {
	return v.Decision == DecisionAllowed
}
