package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/crates-registry/core/internal/apperror"
)

// CookieName is the session cookie the registry front end sets on login.
const CookieName = "crgs_session"

// SignCookie produces the HttpOnly, SameSite=Strict cookie value carrying
// userID, authenticated with an HMAC the way the pack has no off-the-shelf
// signed-cookie library to reach for (no gorilla/securecookie or similar
// appears in any example go.mod); this mirrors the hand-rolled HMAC/SigV4
// request signing already used for blob storage and CDN invalidation.
func SignCookie(secret []byte, userID int64) string {
	payload := strconv.FormatInt(userID, 10)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	sig := mac.Sum(nil)
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// VerifyCookie checks value's signature and returns the carried user id.
func VerifyCookie(secret []byte, value string) (int64, error) {
	parts := strings.SplitN(value, ".", 2)
	if len(parts) != 2 {
		return 0, apperror.New(apperror.Authentication, op+".VerifyCookie", "malformed session cookie")
	}
	payload, sigPart := parts[0], parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return 0, apperror.Wrap(apperror.Authentication, op+".VerifyCookie", "malformed session cookie signature", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(payload))
	want := mac.Sum(nil)
	if subtle.ConstantTimeCompare(sig, want) != 1 {
		return 0, apperror.New(apperror.Authentication, op+".VerifyCookie", "session cookie signature mismatch")
	}
	userID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		return 0, apperror.Wrap(apperror.Authentication, op+".VerifyCookie", "malformed session cookie payload", err)
	}
	return userID, nil
}

// CheckOrigin enforces §4.6's cookie-session rule that the Origin header
// must match one of the configured allowed origins.
func CheckOrigin(origin string, allowed []string) error {
	if origin == "" {
		return apperror.New(apperror.Authentication, op+".CheckOrigin", "missing Origin header")
	}
	for _, a := range allowed {
		if a == origin {
			return nil
		}
	}
	return apperror.New(apperror.Authentication, op+".CheckOrigin", fmt.Sprintf("origin %q is not allowed", origin))
}
