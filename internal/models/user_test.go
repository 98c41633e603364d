package models

import "testing"

func TestLimitsForTier(t *testing.T) {
	tests := []struct {
		tier        string
		replies     int
		suggestions int
		memes       int
	}{
		{TierFree, 10, 50, 5},
		{TierBasic, 300, 500, 50},
		{TierPro, 1000, 2000, 200},
		{TierBusiness, -1, -1, -1},
		{"unknown", 10, 50, 5}, // unknown tiers get free limits
	}

	for _, tt := range tests {
		t.Run(tt.tier, func(t *testing.T) {
			limits := LimitsForTier(tt.tier)
			if limits.Replies != tt.replies {
				t.Errorf("replies: expected %d, got %d", tt.replies, limits.Replies)
			}
			if limits.Suggestions != tt.suggestions {
				t.Errorf("suggestions: expected %d, got %d", tt.suggestions, limits.Suggestions)
			}
			if limits.Memes != tt.memes {
				t.Errorf("memes: expected %d, got %d", tt.memes, limits.Memes)
			}
		})
	}
}

func TestLimitByUsageType(t *testing.T) {
	limits := LimitsForTier(TierFree)

	if got := limits.Limit(UsageTypeReply); got != 10 {
		t.Errorf("expected reply limit 10, got %d", got)
	}
	if got := limits.Limit(UsageTypeSuggestion); got != 50 {
		t.Errorf("expected suggestion limit 50, got %d", got)
	}
	if got := limits.Limit(UsageTypeMeme); got != 5 {
		t.Errorf("expected meme limit 5, got %d", got)
	}
	if got := limits.Limit("bogus"); got != 0 {
		t.Errorf("expected 0 for unknown type, got %d", got)
	}
}

func TestIsPaidTier(t *testing.T) {
	for tier, paid := range map[string]bool{
		TierFree:      false,
		TierBasic:     true,
		TierPro:       true,
		TierBusiness:  true,
		TierAnonymous: false,
	} {
		if got := IsPaidTier(tier); got != paid {
			t.Errorf("IsPaidTier(%s): expected %v, got %v", tier, paid, got)
		}
	}
}
