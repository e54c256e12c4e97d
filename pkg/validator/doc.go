// Package validator provides small composable validation rules.
//
//	err := validator.Apply(
//		validator.RequiredString("subject", p.Subject),
//		validator.MaxLenString("subject", p.Subject, 200),
//		validator.ValidEmail("to", p.To),
//	)
//
// Apply returns nil or a ValidationErrors value listing every failed rule.
package validator
