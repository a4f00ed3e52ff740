package paycomponent

import "time"

type CreatePayComponentRequest struct {
	Code            string  `json:"code" binding:"required,max=60"`
	Name            string  `json:"name" binding:"required,max=120"`
	ComponentType   string  `json:"component_type" binding:"required,oneof=earning deduction"`
	Category        string  `json:"category"`
	CalculationType string  `json:"calculation_type" binding:"required,oneof=fixed formula percentage"`
	Amount          *string `json:"amount"`
	Formula         string  `json:"formula"`
	Description     string  `json:"description"`
	IsTaxable       *bool   `json:"is_taxable"`
	IsRecurring     *bool   `json:"is_recurring"`
}

type UpdatePayComponentRequest struct {
	Name            string  `json:"name" binding:"required,max=120"`
	Category        string  `json:"category"`
	CalculationType string  `json:"calculation_type" binding:"required,oneof=fixed formula percentage"`
	Amount          *string `json:"amount"`
	Formula         string  `json:"formula"`
	Description     string  `json:"description"`
	IsTaxable       *bool   `json:"is_taxable"`
	IsRecurring     *bool   `json:"is_recurring"`
}

type PayComponentResponse struct {
	ID                string    `json:"id"`
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	ComponentType     string    `json:"component_type"`
	Category          string    `json:"category"`
	CalculationType   string    `json:"calculation_type"`
	Amount            *string   `json:"amount,omitempty"`
	Formula           string    `json:"formula,omitempty"`
	RequiredVariables []string  `json:"required_variables,omitempty"`
	Description       string    `json:"description,omitempty"`
	IsTaxable         bool      `json:"is_taxable"`
	IsRecurring       bool      `json:"is_recurring"`
	IsSystemComponent bool      `json:"is_system_component"`
	CreatedAt         time.Time `json:"created_at"`
}
