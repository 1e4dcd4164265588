package ai

// Outcome is the closed result type of a generation attempt. Dispatchers
// never leak transport errors: every failure is mapped to a variant, and the
// orchestrator alone renders variants into user-visible text.
type Outcome interface {
	outcome()
}

// Usage is the token accounting attached to a successful generation.
type Usage struct {
	Prompt     int
	Completion int
	Total      int
}

// Text is a successful generation.
type Text struct {
	Body string

	// Thought is the model's reasoning segment, present only for thinking
	// variants; display is gated by the show_thinking parameter.
	Thought string

	// Grounding carries web-search attribution when grounding ran.
	Grounding *GroundingInfo

	Usage Usage
}

// GroundingInfo is the search attribution of a grounded response.
type GroundingInfo struct {
	Queries []string
	Sources []GroundingSource
}

// GroundingSource is one cited page.
type GroundingSource struct {
	Title string
	URI   string
}

// SafetyRating is one category score from the safety filter.
type SafetyRating struct {
	Category    string
	Probability string
}

// Censored means the provider blocked the prompt or the candidate.
type Censored struct {
	Reason string

	// Ratings holds non-negligible safety categories, when provided.
	Ratings []SafetyRating

	// Citations holds recitation source URIs, when the block was a
	// recitation stop.
	Citations []string
}

// QuotaExhausted means no usable key remains for the general pool.
type QuotaExhausted struct{}

// BillingExhausted means no usable billing-enabled key remains.
type BillingExhausted struct{}

// Unavailable is the provider's transient unavailability.
type Unavailable struct{}

// Internal is the provider's internal failure.
type Internal struct{}

// InvalidArgument means the request was rejected as malformed.
type InvalidArgument struct {
	Message string
}

// UnsupportedMedia means an attached file type the model cannot consume.
type UnsupportedMedia struct{}

// Unknown is any unclassified failure.
type Unknown struct {
	Message string
	Timeout bool
}

func (Text) outcome()             {}
func (Censored) outcome()         {}
func (QuotaExhausted) outcome()   {}
func (BillingExhausted) outcome() {}
func (Unavailable) outcome()      {}
func (Internal) outcome()         {}
func (InvalidArgument) outcome()  {}
func (UnsupportedMedia) outcome() {}
func (Unknown) outcome()          {}

// Failed reports whether the outcome is anything but generated text.
func Failed(o Outcome) bool {
	_, ok := o.(Text)
	return !ok
}
