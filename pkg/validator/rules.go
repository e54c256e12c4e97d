package validator

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	countryCodeRegex = regexp.MustCompile(`^[A-Z]{2}$`)
	domainRegex      = regexp.MustCompile(`(?i)^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
)

// RequiredString validates that a string is not empty after trimming whitespace.
func RequiredString(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return strings.TrimSpace(value) != ""
		},
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

func MaxLenString(field, value string, max int) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= max
		},
		Error: ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters long", max)},
	}
}

// InListString validates that value is one of allowed.
func InListString(field, value string, allowed []string) Rule {
	return Rule{
		Check: func() bool {
			return slices.Contains(allowed, value)
		},
		Error: ValidationError{Field: field, Message: "must be one of: " + strings.Join(allowed, ", ")},
	}
}

func RequiredUUID(field string, value uuid.UUID) Rule {
	return Rule{
		Check: func() bool {
			return value != uuid.Nil
		},
		Error: ValidationError{Field: field, Message: "UUID is required"},
	}
}

// ValidEmail validates a bare email address (no display name).
func ValidEmail(field, value string) Rule {
	return Rule{
		Check: func() bool {
			addr, err := mail.ParseAddress(value)
			if err != nil || addr.Address != value {
				return false
			}
			_, domain, ok := strings.Cut(value, "@")
			return ok && domainRegex.MatchString(domain)
		},
		Error: ValidationError{Field: field, Message: "must be a valid email address"},
	}
}

// ValidCountryCode validates an upper-case ISO 3166-1 alpha-2 code.
func ValidCountryCode(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return countryCodeRegex.MatchString(value)
		},
		Error: ValidationError{Field: field, Message: "must be a two-letter ISO 3166 country code"},
	}
}

func ValidDomainName(field, value string) Rule {
	return Rule{
		Check: func() bool {
			return len(value) <= 253 && domainRegex.MatchString(value)
		},
		Error: ValidationError{Field: field, Message: "must be a valid domain name"},
	}
}

func RequiredTime(field string, value time.Time) Rule {
	return Rule{
		Check: func() bool {
			return !value.IsZero()
		},
		Error: ValidationError{Field: field, Message: "field is required"},
	}
}

// JSONObject validates that raw holds a JSON object.
func JSONObject(field string, raw json.RawMessage) Rule {
	return Rule{
		Check: func() bool {
			var m map[string]json.RawMessage
			return len(raw) > 0 && json.Unmarshal(raw, &m) == nil && m != nil
		},
		Error: ValidationError{Field: field, Message: "must be a JSON object"},
	}
}
