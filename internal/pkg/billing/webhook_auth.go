package billing

import (
	"crypto/subtle"
	"strings"
)

// VerifyWebhookAuth checks the Authorization header against the configured
// shared secret in constant time. The billing platform sends the secret as
// a bearer token; a bare secret is accepted as well.
func VerifyWebhookAuth(authorizationHeader, webhookSecret string) bool {
	header := strings.TrimSpace(authorizationHeader)
	secret := strings.TrimSpace(webhookSecret)
	if header == "" || secret == "" {
		return false
	}

	token := header
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = strings.TrimSpace(header[7:])
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
