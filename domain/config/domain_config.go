package config

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Item constraints
	MinTitleLength int
	MaxTitleLength int
	MinAmount      float64
	MaxAmount      float64

	// Merge rules
	FoldOnCreate        bool
	ConsolidateOnBought bool
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MinTitleLength: 1,
		MaxTitleLength: 100,
		MinAmount:      0.1,
		MaxAmount:      999,

		FoldOnCreate:        true,
		ConsolidateOnBought: true,
	}
}
