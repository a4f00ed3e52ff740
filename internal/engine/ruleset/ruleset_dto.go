package ruleset

type BracketRequest struct {
	BracketOrder   int     `json:"bracket_order" binding:"required,min=1"`
	IncomeMin      string  `json:"income_min" binding:"required"`
	IncomeMax      *string `json:"income_max"`
	RatePercentage string  `json:"rate_percentage" binding:"required"`
	FixedAmount    string  `json:"fixed_amount"`
}

type CreateRuleSetRequest struct {
	TaxType           string           `json:"tax_type" binding:"required"`
	CountryCode       string           `json:"country_code" binding:"required,len=2"`
	Name              string           `json:"name" binding:"required,max=120"`
	CalculationMethod string           `json:"calculation_method" binding:"required,oneof=bracket flat_rate"`
	CalculationMode   string           `json:"calculation_mode" binding:"required,oneof=proportional_distribution component_based"`
	EffectiveFrom     string           `json:"effective_from" binding:"required"`
	EffectiveTo       *string          `json:"effective_to"`
	Brackets          []BracketRequest `json:"brackets" binding:"required,min=1,dive"`
}

// SupersedeRuleSetRequest closes the predecessor's open window and creates
// the successor row in one operation. The predecessor itself never mutates
// beyond gaining an effective_to.
type SupersedeRuleSetRequest struct {
	PredecessorID string               `json:"predecessor_id" binding:"required,uuid"`
	RuleSet       CreateRuleSetRequest `json:"rule_set" binding:"required"`
}

type BracketResponse struct {
	ID             string  `json:"id"`
	BracketOrder   int     `json:"bracket_order"`
	IncomeMin      string  `json:"income_min"`
	IncomeMax      *string `json:"income_max"`
	RatePercentage string  `json:"rate_percentage"`
	FixedAmount    string  `json:"fixed_amount"`
}

type RuleSetResponse struct {
	ID                string            `json:"id"`
	OrganizationID    string            `json:"organization_id"`
	CountryCode       string            `json:"country_code"`
	TaxType           string            `json:"tax_type"`
	Name              string            `json:"name"`
	CalculationMethod string            `json:"calculation_method"`
	CalculationMode   string            `json:"calculation_mode"`
	EffectiveFrom     string            `json:"effective_from"`
	EffectiveTo       *string           `json:"effective_to"`
	Brackets          []BracketResponse `json:"brackets"`
}
