package allowance

import "time"

type CreateAllowanceRequest struct {
	CountryCode   string  `json:"country_code" binding:"required,len=2"`
	AllowanceType string  `json:"allowance_type" binding:"required"`
	Amount        string  `json:"amount" binding:"required"`
	IsPercentage  bool    `json:"is_percentage"`
	EffectiveFrom string  `json:"effective_from" binding:"required"`
	EffectiveTo   *string `json:"effective_to"`
}

type AllowanceResponse struct {
	ID            string     `json:"id"`
	CountryCode   string     `json:"country_code"`
	AllowanceType string     `json:"allowance_type"`
	Amount        string     `json:"amount"`
	IsPercentage  bool       `json:"is_percentage"`
	EffectiveFrom time.Time  `json:"effective_from"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`
}
