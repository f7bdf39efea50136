package services

import (
	"strings"

	"github.com/openclaw/marketplace/internal/platformconfig"
)

// UnknownTypePriceCents is charged for task types missing from the pricing table.
const UnknownTypePriceCents = 5

// EstimatePrice returns the price in cents for a task of taskType carrying messageCount messages.
// skill:* types are priced as code. Multi-turn tiers pick the first bound covering
// messageCount and fall back to the last tier beyond every bound.
func EstimatePrice(pricing platformconfig.PricingConfig, taskType string, messageCount int) int64 {
	key := taskType
	if strings.HasPrefix(taskType, "skill:") {
		key = "code"
	}
	p, ok := pricing[key]
	if !ok {
		return UnknownTypePriceCents
	}
	if len(p.MultiTurn) > 0 && messageCount > 0 {
		for _, tier := range p.MultiTurn {
			if messageCount <= tier.UpToMessage {
				return tier.PriceCents
			}
		}
		return p.MultiTurn[len(p.MultiTurn)-1].PriceCents
	}
	return p.BaseCents
}
