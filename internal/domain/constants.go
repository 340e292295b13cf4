package domain

// Attribution methods, in resolution priority order.
const (
	AttributionURLParameter = "url_parameter"
	AttributionCookie       = "cookie"
	AttributionManualEntry  = "manual_entry"
	AttributionNone         = "none"
)

// Cookie sources decide the validity window of the attribution cookie.
const (
	CookieSourceLink    = "link"
	CookieSourceSession = "session"
)

// Commission entry roles.
const (
	RolePlatform        = "platform"
	RolePrincipalEarner = "principal_earner"
	RoleDelegate        = "delegate"
	rolePrefixReferrer  = "referrer_tier_"
)

// Commission entry kinds.
const (
	EntryKindOriginal = "original"
	EntryKindReversal = "reversal"
)

// Commission entry states.
const (
	EntryPending   = "pending"
	EntryClearing  = "clearing"
	EntryAvailable = "available"
	EntryPaidOut   = "paid_out"
	EntryDisputed  = "disputed"
	EntryReversed  = "reversed"
)

// Fraud signal types.
const (
	SignalVelocitySpike   = "velocity_spike"
	SignalIdentityCluster = "identity_cluster"
	SignalSelfReferral    = "self_referral_attempt"
	SignalReferralCycle   = "referral_cycle"
	SignalOther           = "other"
)

// Fraud signal severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Fraud signal review states. Only the review workflow moves a signal out of open.
const (
	ReviewOpen          = "open"
	ReviewInvestigating = "investigating"
	ReviewConfirmed     = "confirmed"
	ReviewFalsePositive = "false_positive"
)

// System setting keys that override commission config at runtime.
const (
	SettingPlatformFeeRate = "commission.platform_fee_rate"
	SettingTierRates       = "commission.tier_rates"
)

// Reversal lines are numbered from here so they never collide with original lines.
const ReversalLineOffset = 1000
