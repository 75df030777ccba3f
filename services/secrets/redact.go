package secrets

import (
	"regexp"
	"sort"
	"strings"
)

// SecretType represents the kind of credential that was masked
type SecretType string

const (
	SecretTypeGCPKey      SecretType = "gcp_key"
	SecretTypeOpenAIKey   SecretType = "openai_key"
	SecretTypeHFToken     SecretType = "huggingface_token"
	SecretTypeBearerToken SecretType = "bearer_token"
	SecretTypeQueryKey    SecretType = "query_key"
)

// Redacted is the replacement written in place of a secret
const Redacted = "[REDACTED]"

var patterns = []struct {
	secretType SecretType
	pattern    *regexp.Regexp
}{
	{SecretTypeGCPKey, regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{20,}`)},
	{SecretTypeOpenAIKey, regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}`)},
	{SecretTypeHFToken, regexp.MustCompile(`\bhf_[A-Za-z0-9]{16,}`)},
	{SecretTypeBearerToken, regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.=]{8,}`)},
	{SecretTypeQueryKey, regexp.MustCompile(`(?i)([?&]key=)[^&\s"']+`)},
}

// Redactor masks provider credentials in text bound for logs and responses
type Redactor struct {
	known []string
}

// NewRedactor creates a redactor that masks the given configured secrets in
// addition to the well-known key shapes. Blank values are ignored.
func NewRedactor(known ...string) *Redactor {
	r := &Redactor{}
	for _, k := range known {
		k = strings.TrimSpace(k)
		if k != "" {
			r.known = append(r.known, k)
		}
	}
	// longest first so a key that contains another is masked whole
	sort.Slice(r.known, func(i, j int) bool {
		return len(r.known[i]) > len(r.known[j])
	})
	return r
}

// Redact returns text with every detected secret replaced
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return text
	}

	result := text
	if r != nil {
		for _, k := range r.known {
			result = strings.ReplaceAll(result, k, Redacted)
		}
	}

	for _, p := range patterns {
		if p.secretType == SecretTypeQueryKey {
			result = p.pattern.ReplaceAllString(result, "${1}"+Redacted)
			continue
		}
		result = p.pattern.ReplaceAllString(result, Redacted)
	}

	return result
}

// RedactError returns err with its message masked. The original error stays
// reachable through errors.Is and errors.As.
func (r *Redactor) RedactError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	masked := r.Redact(msg)
	if masked == msg {
		return err
	}
	return &redactedError{msg: masked, err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.err }

var defaultRedactor = NewRedactor()

// Redact masks well-known key shapes using no configured secrets
func Redact(text string) string {
	return defaultRedactor.Redact(text)
}
