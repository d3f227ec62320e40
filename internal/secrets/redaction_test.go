package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactString(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"postgres dsn", "postgres://portfolio:hunter2@db:5432/portfolio?sslmode=disable",
			"postgres://portfolio:[REDACTED]@db:5432/portfolio?sslmode=disable"},
		{"redis password only", "redis://:s3cret@cache:6379/0", "redis://:[REDACTED]@cache:6379/0"},
		{"no credentials", "redis://localhost:6379/0", "redis://localhost:6379/0"},
		{"query token", "stocks=AAPL&token=abc123", "stocks=AAPL&token=[REDACTED]"},
		{"bearer", "Authorization: Bearer abc.def", "Authorization: Bearer [REDACTED]"},
		{"plain", "AAPL,MSFT", "AAPL,MSFT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.RedactString(tt.in))
		})
	}
}

func TestRedactParams(t *testing.T) {
	r := NewRedactor()

	out := r.RedactParams(map[string]string{
		"stocks":  "AAPL,MSFT",
		"api_key": "k-123",
		"period":  "10y",
	})
	assert.Equal(t, map[string]string{
		"stocks":  "AAPL,MSFT",
		"api_key": "[REDACTED]",
		"period":  "10y",
	}, out)

	assert.Nil(t, r.RedactParams(nil))
}

func TestIsSensitiveKey(t *testing.T) {
	assert.True(t, IsSensitiveKey("X_API_KEY"))
	assert.True(t, IsSensitiveKey("DATABASE_DSN"))
	assert.True(t, IsSensitiveKey("access_token"))
	assert.False(t, IsSensitiveKey("stocks"))
	assert.False(t, IsSensitiveKey("start_date"))
}
