package campaign

import (
	"math"

	"github.com/MarcoPoloResearchLab/pledge/backend/internal/ledger"
)

// windowEnd is deadline + deadman, saturating at the counter maximum.
func windowEnd(campaign ledger.Campaign) uint64 {
	if campaign.Deadline > math.MaxUint64-campaign.Deadman {
		return math.MaxUint64
	}
	return campaign.Deadline + campaign.Deadman
}

// EffectiveStatus applies lazy deadline expiry without persisting it.
func EffectiveStatus(campaign ledger.Campaign, height uint64) ledger.Status {
	if campaign.Status == ledger.StatusFundraising && height > campaign.Deadline {
		return ledger.StatusExpired
	}
	return campaign.Status
}

// expire applies lazy expiry in place and reports whether the row changed.
func expire(campaign *ledger.Campaign, height uint64) bool {
	status := EffectiveStatus(*campaign, height)
	if status == campaign.Status {
		return false
	}
	campaign.Status = status
	return true
}

// cancelRefusal returns the reason a cancel is refused, or "" when allowed.
func cancelRefusal(campaign ledger.Campaign) string {
	switch {
	case campaign.PaidOut:
		return "Cannot cancel a paid out campaign"
	case campaign.Status == ledger.StatusExpired:
		return "Cannot cancel an expired campaign"
	case campaign.Status == ledger.StatusSuccessful:
		return "Cannot cancel a funded campaign"
	}
	return ""
}

// payOutRefusal returns the reason a pay out is refused, or "" when allowed.
func payOutRefusal(campaign ledger.Campaign, height uint64) string {
	switch {
	case campaign.PaidOut:
		return "Campaign already paid out"
	case campaign.Status != ledger.StatusSuccessful:
		return "Cannot receive pay out unless campaign successfully funded"
	case height <= campaign.Deadline:
		return "Cannot receive pay out before the deadline"
	case height > windowEnd(campaign):
		return "Pay out window has elapsed; funds can only be refunded"
	}
	return ""
}

// refundRefusal returns the reason a refund is refused, or "" when allowed.
func refundRefusal(campaign ledger.Campaign, height uint64) string {
	switch {
	case campaign.PaidOut:
		return "Cannot receive refund after campaign paid out"
	case campaign.Status == ledger.StatusSuccessful && height <= windowEnd(campaign):
		return "Cannot receive refund after campaign successfully funded"
	}
	return ""
}

// contributionRefusal returns the reason the campaign takes no contributions, or "".
func contributionRefusal(campaign ledger.Campaign) string {
	switch campaign.Status {
	case ledger.StatusExpired:
		return "Cannot contribute to an expired campaign"
	case ledger.StatusSuccessful:
		return "Cannot contribute to a funded campaign"
	}
	return ""
}

// commentRefusal returns the reason a comment is refused, or "".
func commentRefusal(campaign ledger.Campaign) string {
	switch {
	case campaign.Status == ledger.StatusExpired:
		return "Cannot comment on an expired campaign"
	case campaign.PaidOut:
		return "Cannot comment on a paid out campaign"
	}
	return ""
}
