// Package claimstore keeps the payment claim ledger.
// Every backend stores the whole ledger as one JSON array and rewrites it on each change.
package claimstore

import (
	"encoding/json"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/subscription"
)

// decode never fails: unreadable data is an empty ledger.
func decode(data []byte) []subscription.Claim {
	claims := make([]subscription.Claim, 0)
	if len(data) == 0 {
		return claims
	}
	if err := json.Unmarshal(data, &claims); err != nil {
		return make([]subscription.Claim, 0)
	}
	return claims
}

func encode(claims []subscription.Claim) ([]byte, error) {
	return json.Marshal(claims)
}

func appendClaim(claims []subscription.Claim, build subscription.ClaimBuilder) ([]subscription.Claim, subscription.Claim, error) {
	claim, err := build(claims)
	if err != nil {
		return nil, subscription.Claim{}, err
	}
	for _, c := range claims {
		if c.ID == claim.ID {
			return nil, subscription.Claim{}, subscription.ErrClaimExists
		}
	}
	return append(claims, claim), claim, nil
}

func updateStatus(claims []subscription.Claim, id string, from, to subscription.ClaimStatus) (subscription.Claim, error) {
	for i := range claims {
		if claims[i].ID != id {
			continue
		}
		if claims[i].Status != from {
			return subscription.Claim{}, subscription.ErrStatusChanged
		}
		claims[i].Status = to
		return claims[i], nil
	}
	return subscription.Claim{}, core.NewNotFoundError("claim", id)
}
