package tenant

// PlanConfig defines limits for a pricing tier.
type PlanConfig struct {
	Plan         Plan
	RateLimitRPM int
	MaxSeats     int // 0 = unlimited
}

// Plans is the hardcoded plan catalogue.
var Plans = map[Plan]PlanConfig{
	PlanFree: {
		Plan:         PlanFree,
		RateLimitRPM: 60,
		MaxSeats:     3,
	},
	PlanStarter: {
		Plan:         PlanStarter,
		RateLimitRPM: 300,
		MaxSeats:     10,
	},
	PlanGrowth: {
		Plan:         PlanGrowth,
		RateLimitRPM: 1000,
		MaxSeats:     50,
	},
	PlanEnterprise: {
		Plan:         PlanEnterprise,
		RateLimitRPM: 5000,
		MaxSeats:     0,
	},
}

// DefaultSettingsForPlan returns the Settings populated from a plan's defaults.
func DefaultSettingsForPlan(p Plan) Settings {
	cfg, ok := Plans[p]
	if !ok {
		cfg = Plans[PlanFree]
	}
	return Settings{
		RateLimitRPM: cfg.RateLimitRPM,
		MaxSeats:     cfg.MaxSeats,
	}
}

// ValidPlan returns true if the plan name is recognised.
func ValidPlan(p Plan) bool {
	_, ok := Plans[p]
	return ok
}
