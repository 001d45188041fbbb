package memory

import (
	"context"
	"crypto/rand"
	"fmt"
)

const certificateTokenChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// CertificateGenerator is a stand-in for the storage-backed PDF generator.
// It mints a stable-looking URL without rendering anything.
type CertificateGenerator struct {
	baseURL string
}

func NewCertificateGenerator(baseURL string) *CertificateGenerator {
	if baseURL == "" {
		baseURL = "https://storage.example.com/certificates"
	}
	return &CertificateGenerator{baseURL: baseURL}
}

func (g *CertificateGenerator) Generate(_ context.Context, resultID string) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("certificate token: %w", err)
	}
	token := make([]byte, len(buf))
	for i, b := range buf {
		token[i] = certificateTokenChars[int(b)%len(certificateTokenChars)]
	}
	return fmt.Sprintf("%s/%s.pdf", g.baseURL, token), nil
}
