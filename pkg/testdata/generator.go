package testdata

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/contentdesk/contentdesk/pkg/auth"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// GeneratorConfig configures demo data generation
type GeneratorConfig struct {
	Users           int
	RequestsPerUser int
	PremiumChance   float64 // 0.0-1.0 (probability of an active subscription)
	CompletedChance float64 // probability a request has finished
	DefaultPassword string
}

// DefaultConfig generates a small demo dataset
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Users:           10,
		RequestsPerUser: 5,
		PremiumChance:   0.3,
		CompletedChance: 0.6,
		DefaultPassword: "password123",
	}
}

// Topics per content type, combined with gofakeit nouns for variety
var topicTemplates = map[store.ContentType][]string{
	store.ContentBlogPost: {
		"How %s is changing the industry",
		"10 lessons we learned about %s",
		"The beginner's guide to %s",
		"Why your team should care about %s",
	},
	store.ContentSEOArticle: {
		"Best %s tools compared",
		"%s pricing guide",
		"What is %s and how does it work",
	},
	store.ContentSocialPost: {
		"Announcing our new %s feature",
		"Behind the scenes: %s",
		"Quick tip about %s",
	},
}

var platforms = []string{"LinkedIn", "Twitter", "Facebook", "Instagram"}

// SeedUsers creates fake accounts and returns their IDs
func SeedUsers(ctx context.Context, users store.UserStore, cfg GeneratorConfig) ([]string, error) {
	hash, err := auth.HashPassword(cfg.DefaultPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing default password: %w", err)
	}

	ids := make([]string, 0, cfg.Users)
	for i := 0; i < cfg.Users; i++ {
		u := &store.User{
			Email:        gofakeit.Email(),
			PasswordHash: hash,
			Name:         gofakeit.Name(),
			Tier:         store.TierFree,
			Tokens:       entitlement.StarterTokens,
			LastReset:    time.Now(),
			CompanyName:  gofakeit.Company(),
			Website:      gofakeit.URL(),
		}
		if rand.Float64() < cfg.PremiumChance {
			end := time.Now().AddDate(0, 0, rand.Intn(30)+1)
			u.Tier = store.TierPremium
			u.SubscriptionEnd = &end
			u.Tokens = rand.Intn(entitlement.PremiumMonthlyTokens + 1)
		}

		id, err := users.Create(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("creating user %s: %w", u.Email, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// SeedContent creates fake content requests for the given users
func SeedContent(ctx context.Context, users store.UserStore, content store.ContentStore, userIDs []string, cfg GeneratorConfig) (int, error) {
	created := 0
	for _, userID := range userIDs {
		u, err := users.Get(ctx, userID)
		if err != nil {
			return created, fmt.Errorf("loading user %s: %w", userID, err)
		}

		for i := 0; i < cfg.RequestsPerUser; i++ {
			req := fakeRequest(u, cfg)
			if _, err := content.Create(ctx, req); err != nil {
				return created, fmt.Errorf("creating request for %s: %w", u.Email, err)
			}
			created++
		}
	}
	return created, nil
}

func fakeRequest(u *store.User, cfg GeneratorConfig) *store.ContentRequest {
	types := []store.ContentType{store.ContentBlogPost, store.ContentSEOArticle, store.ContentSocialPost}
	contentType := types[rand.Intn(len(types))]

	templates := topicTemplates[contentType]
	topic := fmt.Sprintf(templates[rand.Intn(len(templates))], gofakeit.BuzzWord())

	var details store.Details
	switch contentType {
	case store.ContentBlogPost:
		details.Blog = &store.BlogParams{
			Topic:     topic,
			Keywords:  fakeKeywords(),
			WordCount: (rand.Intn(20) + 2) * 100,
		}
	case store.ContentSEOArticle:
		details.Seo = &store.SeoParams{
			Topic:     topic,
			Keywords:  fakeKeywords(),
			WordCount: (rand.Intn(20) + 2) * 100,
		}
	case store.ContentSocialPost:
		details.Social = &store.SocialParams{
			Platform: platforms[rand.Intn(len(platforms))],
			Topic:    topic,
		}
	}

	req := &store.ContentRequest{
		UserID:      u.ID,
		UserEmail:   u.Email,
		ContentType: contentType,
		Details:     details,
		Status:      store.StatusRequested,
	}
	if rand.Float64() < cfg.CompletedChance {
		req.Status = store.StatusCompleted
		req.Output = gofakeit.Paragraph(3, 4, 12, "\n\n")
	}
	return req
}

func fakeKeywords() []string {
	n := rand.Intn(4) + 1
	words := make([]string, 0, n)
	for i := 0; i < n; i++ {
		words = append(words, gofakeit.BuzzWord())
	}
	return words
}
