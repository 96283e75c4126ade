// Package auth signs WebSocket handshakes with RSA-PSS.
//
// Every handshake carries three headers: <prefix>-ACCESS-KEY,
// <prefix>-ACCESS-TIMESTAMP and <prefix>-ACCESS-SIGNATURE, where the
// signature covers timestamp_ms + method + path.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// DefaultPrefix is the header prefix used when none is configured.
const DefaultPrefix = "LINK"

// Credentials holds the key ID and private key for signing handshakes.
type Credentials struct {
	KeyID      string          // Key ID registered with the server
	PrivateKey *rsa.PrivateKey // RSA private key for signing
	Prefix     string          // Header prefix, DefaultPrefix if empty

	now func() time.Time
}

// LoadCredentials loads credentials from key ID and private key file path.
func LoadCredentials(keyID, privateKeyPath, prefix string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("key ID is required")
	}
	if privateKeyPath == "" {
		return nil, errors.New("private key path is required")
	}

	privateKey, err := LoadPrivateKey(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}

	return &Credentials{
		KeyID:      keyID,
		PrivateKey: privateKey,
		Prefix:     prefix,
	}, nil
}

// LoadPrivateKey loads an RSA private key from a PEM file.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	// Try PKCS#8 first (newer format)
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not an RSA private key")
		}
		return rsaKey, nil
	}

	// Fall back to PKCS#1 (older format)
	rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return rsaKey, nil
}

// SignRequest generates authentication headers for a request.
func (c *Credentials) SignRequest(method, path string) (http.Header, error) {
	timestampMs := c.clock().UnixMilli()

	signature, err := c.generateSignature(timestampMs, method, path)
	if err != nil {
		return nil, err
	}

	prefix := c.prefix()
	h := http.Header{}
	h.Set(prefix+"-ACCESS-KEY", c.KeyID)
	h.Set(prefix+"-ACCESS-TIMESTAMP", strconv.FormatInt(timestampMs, 10))
	h.Set(prefix+"-ACCESS-SIGNATURE", signature)
	return h, nil
}

// HeaderFunc returns a function that signs a fresh GET handshake for path
// on every call. It matches connection.HeaderFunc, so each redial carries
// a new timestamp.
func (c *Credentials) HeaderFunc(path string) func() (http.Header, error) {
	return func() (http.Header, error) {
		return c.SignRequest(http.MethodGet, path)
	}
}

// Verify checks a signature produced by SignRequest.
func Verify(pub *rsa.PublicKey, timestampMs int64, method, path, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	hashed := sha256.Sum256([]byte(signingMessage(timestampMs, method, path)))
	return rsa.VerifyPSS(pub, crypto.SHA256, hashed[:], sig, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash})
}

// generateSignature creates an RSA-PSS signature for the given request.
func (c *Credentials) generateSignature(timestampMs int64, method, path string) (string, error) {
	hashed := sha256.Sum256([]byte(signingMessage(timestampMs, method, path)))

	signature, err := rsa.SignPSS(
		rand.Reader,
		c.PrivateKey,
		crypto.SHA256,
		hashed[:],
		&rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash},
	)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// signingMessage is timestamp_ms + method + path.
func signingMessage(timestampMs int64, method, path string) string {
	return strconv.FormatInt(timestampMs, 10) + method + path
}

func (c *Credentials) prefix() string {
	if c.Prefix == "" {
		return DefaultPrefix
	}
	return c.Prefix
}

func (c *Credentials) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}
