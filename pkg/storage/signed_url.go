package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidLink is returned for malformed or tampered tokens.
	ErrInvalidLink = errors.New("invalid link token")
	// ErrLinkExpired is returned once a token passes its expiry.
	ErrLinkExpired = errors.New("link token expired")
)

// LinkSigner creates and validates expiring tokens for public feed links.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner constructs a signer with the provided secret and TTL.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &LinkSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token binding the subject to a feed name.
func (s *LinkSigner) Generate(subjectID, feed string) (string, time.Time, error) {
	if subjectID == "" || feed == "" {
		return "", time.Time{}, fmt.Errorf("subject and feed required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).UTC().Truncate(time.Second)
	subject := base64.RawURLEncoding.EncodeToString([]byte(subjectID))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedFeed := base64.RawURLEncoding.EncodeToString([]byte(feed))
	signature := s.sign(subject, ts, encodedFeed)
	return strings.Join([]string{subject, ts, encodedFeed, signature}, "."), expiresAt, nil
}

// Parse validates a token and returns the embedded subject and feed.
func (s *LinkSigner) Parse(token string) (subjectID, feed string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, ErrInvalidLink
	}
	subject, ts, encodedFeed, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(subject, ts, encodedFeed)), []byte(signature)) {
		return "", "", time.Time{}, ErrInvalidLink
	}
	rawSubject, err := base64.RawURLEncoding.DecodeString(subject)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidLink
	}
	rawFeed, err := base64.RawURLEncoding.DecodeString(encodedFeed)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidLink
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", time.Time{}, ErrInvalidLink
	}
	expiresAt = time.Unix(expUnix, 0).UTC()
	if s.now().After(expiresAt) {
		return "", "", time.Time{}, ErrLinkExpired
	}
	return string(rawSubject), string(rawFeed), expiresAt, nil
}

func (s *LinkSigner) sign(subject, ts, feed string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts + "|" + feed))
	return hex.EncodeToString(mac.Sum(nil))
}
