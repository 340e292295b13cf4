package domain

import (
	"strconv"
	"strings"
)

// ReferrerTierRole returns the ledger role for a referral tier, starting at 1.
func ReferrerTierRole(tier int) string {
	return rolePrefixReferrer + strconv.Itoa(tier)
}

// TierOfRole returns the tier encoded in a referrer role, or 0 for any other role.
func TierOfRole(role string) int {
	if !strings.HasPrefix(role, rolePrefixReferrer) {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimPrefix(role, rolePrefixReferrer))
	if err != nil || n < 1 {
		return 0
	}
	return n
}

var entryTransitions = map[string][]string{
	EntryPending:   {EntryClearing, EntryDisputed, EntryReversed},
	EntryClearing:  {EntryAvailable, EntryDisputed, EntryReversed},
	EntryAvailable: {EntryPaidOut, EntryDisputed, EntryReversed},
	EntryDisputed:  {EntryClearing, EntryReversed},
}

// CanTransitionEntry reports whether a commission entry may move from one state to another.
// paid_out and reversed are terminal.
func CanTransitionEntry(from, to string) bool {
	for _, s := range entryTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var reviewTransitions = map[string][]string{
	ReviewOpen:          {ReviewInvestigating, ReviewConfirmed, ReviewFalsePositive},
	ReviewInvestigating: {ReviewConfirmed, ReviewFalsePositive},
}

func CanTransitionReview(from, to string) bool {
	for _, s := range reviewTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
