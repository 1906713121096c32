package security

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxRemoteMessageRunes bounds remote error text kept in ledger reasons and
// audit rows.
const MaxRemoteMessageRunes = 256

var (
	secretKeyExpr        = `(?:password|passwd|secret|mnemonic|api[_-]?key|priv[_-]?key|[a-z0-9._-]*token[a-z0-9._-]*)`
	kvSecretPattern      = regexp.MustCompile(`(?i)(` + secretKeyExpr + `)\s*[:=]\s*(?:"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[^\s"']+)`)
	jsonSecretPattern    = regexp.MustCompile(`(?i)("` + secretKeyExpr + `"\s*:\s*)"(?:[^"\\]|\\.)*"`)
	authorizationPattern = regexp.MustCompile(`(?i)(authorization\s*:\s*)[^\r\n]+`)
	bearerTokenPattern   = regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9._~+/=-]+`)
	pemBlockPattern      = regexp.MustCompile(`(?s)-----BEGIN [^-]+ PRIVATE KEY-----.*?-----END [^-]+ PRIVATE KEY-----`)
)

// RedactSecrets masks credential-shaped fragments.
func RedactSecrets(input string) string {
	if input == "" {
		return ""
	}
	out := pemBlockPattern.ReplaceAllString(input, "[REDACTED_PRIVATE_KEY]")
	out = jsonSecretPattern.ReplaceAllString(out, `${1}"[REDACTED]"`)
	out = kvSecretPattern.ReplaceAllStringFunc(out, func(match string) string {
		idx := strings.IndexAny(match, ":=")
		if idx < 0 {
			return "[REDACTED]"
		}
		return match[:idx+1] + " [REDACTED]"
	})
	out = authorizationPattern.ReplaceAllString(out, `${1}[REDACTED]`)
	out = bearerTokenPattern.ReplaceAllString(out, "Bearer [REDACTED]")
	return out
}

// SanitizeRemoteMessage prepares an error string reported by the remote
// chain or a relayer for storage: secrets are masked, control characters and
// runs of whitespace collapse to single spaces, and the result is truncated
// to MaxRemoteMessageRunes.
func SanitizeRemoteMessage(input string) string {
	redacted := RedactSecrets(input)
	var b strings.Builder
	space := false
	for _, r := range redacted {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := []rune(b.String())
	if len(out) > MaxRemoteMessageRunes {
		return string(out[:MaxRemoteMessageRunes-1]) + "…"
	}
	return string(out)
}
