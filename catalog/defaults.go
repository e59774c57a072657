package catalog

import "github.com/shopspring/decimal"

// price is a helper for the static tables below; the inputs are literals,
// so a parse failure is a programming error.
func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("catalog: bad price literal: " + s)
	}
	return d
}

// Default returns the production catalog: four point packages and eight
// premium features.
func Default() *Catalog {
	return New(DefaultPackages(), DefaultFeatures())
}

func DefaultPackages() []Package {
	return []Package{
		{
			ID:          "starter",
			Title:       "Starter Pack",
			Points:      1000,
			Price:       price("4.99"),
			Description: "Perfect for getting started",
			Perks: []string{
				"1,000 Premium Points",
				"Basic Analytics Access",
				"Standard Support",
				"Basic Themes",
			},
		},
		{
			ID:          "premium",
			Title:       "Premium Pack",
			Points:      3000,
			Price:       price("9.99"),
			Description: "Most popular choice",
			Perks: []string{
				"3,000 Premium Points",
				"Advanced Analytics",
				"Custom Themes",
				"Priority Support",
				"Extended History",
			},
			Popular: true,
		},
		{
			ID:          "elite",
			Title:       "Elite Pack",
			Points:      7500,
			Price:       price("19.99"),
			Description: "For serious habit builders",
			Perks: []string{
				"7,500 Premium Points",
				"All Premium Features",
				"Priority Support",
				"Exclusive Challenges",
				"Early Access Features",
			},
			Featured: true,
		},
		{
			ID:          "ultimate",
			Title:       "Ultimate Pack",
			Points:      20000,
			Price:       price("39.99"),
			Description: "Best value for points",
			Perks: []string{
				"20,000 Premium Points",
				"All Premium Features",
				"VIP Support",
				"Exclusive Content",
				"Beta Features Access",
			},
		},
	}
}

func DefaultFeatures() []Feature {
	return []Feature{
		{
			ID:             "advanced_analytics",
			Name:           "Advanced Analytics",
			Description:    "Access detailed habit statistics and predictions",
			RequiredPoints: 1000,
			Category:       CategoryAnalytics,
		},
		{
			ID:             "unlimited_battles",
			Name:           "Unlimited Battles",
			Description:    "Create and join unlimited habit battles with friends",
			RequiredPoints: 2000,
			Category:       CategorySocial,
		},
		{
			ID:             "custom_themes",
			Name:           "Custom Themes",
			Description:    "Unlock premium themes and customization options",
			RequiredPoints: 1500,
			Category:       CategoryCustomization,
		},
		{
			ID:             "priority_support",
			Name:           "Priority Support",
			Description:    "Get priority assistance and feature requests",
			RequiredPoints: 3000,
			Category:       CategorySupport,
		},
		{
			ID:             "extended_history",
			Name:           "Extended History",
			Description:    "Access your complete habit history and insights",
			RequiredPoints: 2500,
			Category:       CategoryData,
		},
		{
			ID:             "smart_reminders",
			Name:           "Smart Reminders",
			Description:    "Reminder suggestions based on your patterns",
			RequiredPoints: 2000,
			Category:       CategoryCustomization,
		},
		{
			ID:             "habit_insights",
			Name:           "Habit Insights",
			Description:    "Deep dive into your habit formation patterns",
			RequiredPoints: 1800,
			Category:       CategoryAnalytics,
		},
		{
			ID:             "data_export",
			Name:           "Data Export",
			Description:    "Export your habit data in various formats",
			RequiredPoints: 1200,
			Category:       CategoryData,
		},
	}
}
