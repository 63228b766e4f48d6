package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignedURLSigner mints and verifies HMAC download tokens. A token encodes
// the job ID, the stored filename and an expiry, so downloads need neither a
// session nor a database lookup to authenticate.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewSignedURLSigner builds a signer; ttl defaults to 24h when non-positive.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl}
}

// Generate returns a token of the form base64(payload).base64(signature).
func (s *SignedURLSigner) Generate(jobID, name string) (string, time.Time, error) {
	if jobID == "" || name == "" {
		return "", time.Time{}, fmt.Errorf("job id and file name are required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret is not configured")
	}
	expiresAt := time.Now().Add(s.ttl)
	payload := strings.Join([]string{jobID, strconv.FormatInt(expiresAt.Unix(), 10), name}, "|")
	token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(s.sign(payload))
	return token, expiresAt, nil
}

// Parse verifies the signature and expiry and returns the embedded fields.
// allowExpired skips the expiry check so cleanup can resolve stale tokens.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (jobID, name string, expiresAt time.Time, err error) {
	encodedPayload, encodedSig, ok := strings.Cut(token, ".")
	if !ok {
		return "", "", time.Time{}, fmt.Errorf("malformed token")
	}
	rawPayload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed token payload")
	}
	signature, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed token signature")
	}
	if !hmac.Equal(signature, s.sign(string(rawPayload))) {
		return "", "", time.Time{}, fmt.Errorf("token signature mismatch")
	}

	fields := strings.SplitN(string(rawPayload), "|", 3)
	if len(fields) != 3 {
		return "", "", time.Time{}, fmt.Errorf("malformed token payload")
	}
	unix, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed token expiry")
	}
	expiresAt = time.Unix(unix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}
	return fields[0], fields[2], expiresAt, nil
}

func (s *SignedURLSigner) sign(payload string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}
