package types

// Defaults mirrored by DefaultPolicy. The trial-division and rho budgets
// match the values the dashboard has always submitted.
const (
	DefaultTrialDivisionLimit   = 10_000_000
	DefaultPollardRhoIterations = 1_000_000
	DefaultPollardRhoRetries    = 5
	DefaultSearchSpanLimit      = 1_000_000_000_000
)

// ECMStage is one (B1 smoothness bound, curve count) pair. Stages run in
// the order given, cheapest first.
type ECMStage struct {
	B1     uint64 `json:"b1"`
	Curves int    `json:"curves"`
}

// Policy selects which algorithms a job runs and their budgets. It is pure
// configuration, owned by the Job and immutable after submission.
//
// Decode JSON into a DefaultPolicy() value so absent fields keep their
// defaults rather than zeroing out.
type Policy struct {
	UseTrialDivision     bool       `json:"use_trial_division"`
	TrialDivisionLimit   uint64     `json:"trial_division_limit"`
	UsePollardRho        bool       `json:"use_pollard_rho"`
	PollardRhoIterations uint64     `json:"pollard_rho_iterations"`
	PollardRhoRetries    int        `json:"pollard_rho_retries"`
	UseECM               bool       `json:"use_ecm"`
	ECMStages            []ECMStage `json:"ecm_stages"`
	UseEquationBounds    bool       `json:"use_equation_bounds"`

	// SearchSpanLimit caps the candidate span the equation-guided search
	// will attempt. A wider span exhausts the stage immediately with a
	// warning instead of starting a scan that cannot finish.
	SearchSpanLimit uint64 `json:"search_span_limit"`

	// UseFactorDB consults the public factordb.com database before any
	// local stage runs. Off by default: it needs network access.
	UseFactorDB bool `json:"use_factordb"`

	// RandSeed makes Pollard-rho and ECM deterministic when non-zero.
	// Zero seeds from entropy.
	RandSeed int64 `json:"rand_seed,omitempty"`
}

// DefaultECMStages returns the standard escalation ladder: a quick pass,
// a standard pass, then a deep search.
func DefaultECMStages() []ECMStage {
	return []ECMStage{
		{B1: 10_000, Curves: 25},
		{B1: 50_000, Curves: 100},
		{B1: 250_000, Curves: 200},
	}
}

// DefaultPolicy returns the policy used when a submission does not carry one:
// every algorithm enabled with the standard budgets.
func DefaultPolicy() Policy {
	return Policy{
		UseTrialDivision:     true,
		TrialDivisionLimit:   DefaultTrialDivisionLimit,
		UsePollardRho:        true,
		PollardRhoIterations: DefaultPollardRhoIterations,
		PollardRhoRetries:    DefaultPollardRhoRetries,
		UseECM:               true,
		ECMStages:            DefaultECMStages(),
		UseEquationBounds:    true,
		SearchSpanLimit:      DefaultSearchSpanLimit,
	}
}

// Normalize fills zeroed budget fields with their defaults. Enabled flags
// are left alone: a policy that disables an algorithm stays disabled.
func (p *Policy) Normalize() {
	if p.TrialDivisionLimit == 0 {
		p.TrialDivisionLimit = DefaultTrialDivisionLimit
	}
	if p.PollardRhoIterations == 0 {
		p.PollardRhoIterations = DefaultPollardRhoIterations
	}
	if p.PollardRhoRetries <= 0 {
		p.PollardRhoRetries = DefaultPollardRhoRetries
	}
	if p.UseECM && len(p.ECMStages) == 0 {
		p.ECMStages = DefaultECMStages()
	}
	if p.SearchSpanLimit == 0 {
		p.SearchSpanLimit = DefaultSearchSpanLimit
	}
}

// Enabled reports whether any factor-finding stage is switched on.
func (p *Policy) Enabled() bool {
	return p.UseTrialDivision || p.UsePollardRho || p.UseECM || p.UseEquationBounds
}
