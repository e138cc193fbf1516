package service

import "unicode"

// MinPasswordLength applies to passwords set through the service.  Login
// only checks the configured minimum length.
const MinPasswordLength = 8

// passwordProblem returns why p is not acceptable, or "" when it is.
func passwordProblem(p string) string {
	if len([]rune(p)) < MinPasswordLength {
		return "must be at least 8 characters"
	}
	var upper, lower, digit, symbol bool
	for _, r := range p {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return "must contain upper and lower case letters, a digit and a symbol"
	}
	return ""
}
