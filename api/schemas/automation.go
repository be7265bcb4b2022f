package schemas

import (
	"errors"
	"fmt"
)

// -- Request Schemas --

// Field names accepted inside the formData object of an automation request.
const (
	FieldBirthday          = "birthday"
	FieldInvestmentAmount  = "investmentAmount"
	FieldRetirementAge     = "retirementAge"
	FieldLongevityEstimate = "longevityEstimate"
	FieldRetirementMonth   = "retirementMonth"
	FieldRetirementYear    = "retirementYear"
	FieldUsername          = "username"
	FieldPassword          = "password"
)

// RequiredInputFields lists every formData property in the order it is validated.
var RequiredInputFields = []string{
	FieldBirthday,
	FieldInvestmentAmount,
	FieldRetirementAge,
	FieldLongevityEstimate,
	FieldRetirementMonth,
	FieldRetirementYear,
	FieldUsername,
	FieldPassword,
}

// AutomationInput carries the caller supplied values for a single automation run.
// All fields are strings; an empty string means "use the workflow default".
type AutomationInput struct {
	Birthday          string `json:"birthday"`
	InvestmentAmount  string `json:"investmentAmount"`
	RetirementAge     string `json:"retirementAge"`
	LongevityEstimate string `json:"longevityEstimate"`
	RetirementMonth   string `json:"retirementMonth"`
	RetirementYear    string `json:"retirementYear"`
	Username          string `json:"username"`
	Password          string `json:"password"`
}

// Field returns the value of a formData property by its wire name.
func (in AutomationInput) Field(name string) (string, bool) {
	switch name {
	case FieldBirthday:
		return in.Birthday, true
	case FieldInvestmentAmount:
		return in.InvestmentAmount, true
	case FieldRetirementAge:
		return in.RetirementAge, true
	case FieldLongevityEstimate:
		return in.LongevityEstimate, true
	case FieldRetirementMonth:
		return in.RetirementMonth, true
	case FieldRetirementYear:
		return in.RetirementYear, true
	case FieldUsername:
		return in.Username, true
	case FieldPassword:
		return in.Password, true
	}
	return "", false
}

// ErrFormDataRequired is returned when the request body lacks a formData object.
var ErrFormDataRequired = errors.New("formData object is required.")

// MissingFieldError reports a required formData property that was not sent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing property: %s", e.Field)
}

// FieldTypeError reports a formData property whose value is not a JSON string.
type FieldTypeError struct {
	Field string
}

func (e *FieldTypeError) Error() string {
	return fmt.Sprintf("Property '%s' must be a string.", e.Field)
}

// IsRequestError reports whether err is one of the caller-facing validation errors.
func IsRequestError(err error) bool {
	var missing *MissingFieldError
	var typed *FieldTypeError
	return errors.Is(err, ErrFormDataRequired) || errors.As(err, &missing) || errors.As(err, &typed)
}

// ParseFormData validates a decoded formData value and builds the input record.
// Properties are checked in RequiredInputFields order and the first problem wins.
func ParseFormData(raw interface{}) (AutomationInput, error) {
	formData, ok := raw.(map[string]interface{})
	if !ok || formData == nil {
		return AutomationInput{}, ErrFormDataRequired
	}

	values := make(map[string]string, len(RequiredInputFields))
	for _, field := range RequiredInputFields {
		v, present := formData[field]
		if !present {
			return AutomationInput{}, &MissingFieldError{Field: field}
		}
		s, isString := v.(string)
		if !isString {
			return AutomationInput{}, &FieldTypeError{Field: field}
		}
		values[field] = s
	}

	return AutomationInput{
		Birthday:          values[FieldBirthday],
		InvestmentAmount:  values[FieldInvestmentAmount],
		RetirementAge:     values[FieldRetirementAge],
		LongevityEstimate: values[FieldLongevityEstimate],
		RetirementMonth:   values[FieldRetirementMonth],
		RetirementYear:    values[FieldRetirementYear],
		Username:          values[FieldUsername],
		Password:          values[FieldPassword],
	}, nil
}

// -- Result Schemas --

// InvestmentByYear is one row of the projected investment series.
type InvestmentByYear struct {
	Year       string `json:"year"`
	Investment string `json:"investment"`
}

// AutomationResult is the structured output of a run.
// MonthlyIncomeGross stays nil and the slices stay empty unless extraction upgrades them.
type AutomationResult struct {
	MonthlyIncomeGross *string            `json:"monthlyIncomeGross"`
	Plans              []string           `json:"plans"`
	InvestmentsByYears []InvestmentByYear `json:"investmentsByYears"`
}

// NewAutomationResult returns a result holding the default values.
func NewAutomationResult() *AutomationResult {
	return &AutomationResult{
		Plans:              []string{},
		InvestmentsByYears: []InvestmentByYear{},
	}
}
