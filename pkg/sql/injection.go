package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a literal that looks like an injection payload.
type InjectionCheckResult struct {
	Fingerprint string // libinjection fingerprint of the detected pattern
	Value       string
}

// CheckLiteralForInjection runs libinjection over a single string literal.
// Returns nil when the value looks benign.
func CheckLiteralForInjection(value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{Fingerprint: string(fingerprint), Value: value}
}

// CheckLiterals returns the first literal that fails the injection check.
func CheckLiterals(literals []string) *InjectionCheckResult {
	for _, v := range literals {
		if hit := CheckLiteralForInjection(v); hit != nil {
			return hit
		}
	}
	return nil
}
