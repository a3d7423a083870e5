package entitlement

import (
	"github.com/contentdesk/contentdesk/pkg/store"
)

// Monthly token allotments per tier, and the grant new accounts start with.
const (
	FreeMonthlyTokens    = 10
	PremiumMonthlyTokens = 100
	StarterTokens        = 10
)

// Flat costs. Word-count-priced types are charged per started 500-word unit.
const (
	costSocialPost     = 2
	costResumeBasic    = 5
	costResumeTargeted = 8
	wordsPerCostUnit   = 500
)

// MonthlyAllotment returns the monthly token allotment for a tier
func MonthlyAllotment(tier store.Tier) int {
	if tier == store.TierPremium {
		return PremiumMonthlyTokens
	}
	return FreeMonthlyTokens
}

// Cost returns the token cost of a content request. Social posts are flat;
// blog posts and SEO articles cost one token per whole 500-word unit with a
// floor of one.
func Cost(contentType store.ContentType, wordCount int) int {
	switch contentType {
	case store.ContentSocialPost:
		return costSocialPost
	case store.ContentBlogPost, store.ContentSEOArticle:
		units := wordCount / wordsPerCostUnit
		if units < 1 {
			units = 1
		}
		return units
	}
	return 1
}

// ResumeCost returns the flat token cost of a resume enhancement
func ResumeCost(resumeType store.ResumeType) int {
	if resumeType == store.ResumeTargetEnhanced {
		return costResumeTargeted
	}
	return costResumeBasic
}
