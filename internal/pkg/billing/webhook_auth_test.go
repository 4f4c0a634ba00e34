package billing

import "testing"

func TestVerifyWebhookAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		secret string
		want   bool
	}{
		{name: "bare secret", header: "s3cret", secret: "s3cret", want: true},
		{name: "bearer prefix", header: "Bearer s3cret", secret: "s3cret", want: true},
		{name: "case-insensitive scheme", header: "bearer s3cret", secret: "s3cret", want: true},
		{name: "wrong secret", header: "Bearer nope", secret: "s3cret", want: false},
		{name: "empty header", header: "", secret: "s3cret", want: false},
		{name: "empty secret", header: "Bearer s3cret", secret: "", want: false},
		{name: "prefix of secret", header: "s3c", secret: "s3cret", want: false},
	}

	for _, tt := range tests {
		if got := VerifyWebhookAuth(tt.header, tt.secret); got != tt.want {
			t.Fatalf("%s: VerifyWebhookAuth(%q, %q) = %v, want %v", tt.name, tt.header, tt.secret, got, tt.want)
		}
	}
}
