package domain

import "strings"

// phoneSubjectPrefix replaces the leading "+" of a phone number in its external subject id.
const phoneSubjectPrefix = "phone_"

// VerifiedIdentity is what the external identity provider vouches for after checking an assertion.
type VerifiedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// PhoneSubject maps an E.164 phone number to its external subject id: +14155550123 -> phone_14155550123.
// The mapping is a stable key derivation, not a secret.
func PhoneSubject(phone string) string {
	return phoneSubjectPrefix + strings.TrimPrefix(phone, "+")
}

// SplitDisplayName splits a display name into first name (first token) and last name (the rest).
func SplitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
