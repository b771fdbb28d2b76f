package assessment

// Config controls the generation call.
type Config struct {
	// MaxTokens is the output budget for one generation call.
	MaxTokens int `mapstructure:"max_tokens"`

	// Temperature balances variety against format adherence.
	Temperature float64 `mapstructure:"temperature"`

	// Structured asks the backend for schema-constrained output instead
	// of free text. Extraction is the same either way.
	Structured bool `mapstructure:"structured"`
}

// DefaultConfig returns temperature 0.7 and a 2000 token budget.
func DefaultConfig() Config {
	return Config{
		MaxTokens:   2000,
		Temperature: 0.7,
	}
}
