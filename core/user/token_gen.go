package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TokenPurpose scopes a token to one flow; a token made for one purpose never verifies for another.
type TokenPurpose string

const (
	PasswordResetToken     TokenPurpose = "password_reset"
	EmailVerificationToken TokenPurpose = "email_verification"
)

var (
	saltPrefix = "iems.core.user.token_gen."
	nowFunc    = time.Now // mockable

	// errors
	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

// EncodeUID base64 encodes given User ID
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

// decodeUID base64 decodes given UID
func decodeUID(uid string) (string, error) {
	idBytes, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(idBytes), nil
}

// makeToken generates a token for a given User and purpose.
func makeToken(usr User, purpose TokenPurpose, secretKey []byte) string {
	return makeTokenWithTimestamp(usr, purpose, secretKey, numDaysSince2001(nowFunc()))
}

// verifyToken checks that a token for a given User and purpose is valid and not older than timeout.
func verifyToken(usr User, purpose TokenPurpose, token string, secretKey []byte, timeout time.Duration) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}

	data, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	newToken := makeTokenWithTimestamp(usr, purpose, secretKey, ts)
	if subtle.ConstantTimeCompare([]byte(newToken), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if (numDaysSince2001(nowFunc()) - ts) > int(timeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(usr User, purpose TokenPurpose, secretKey []byte, ts int) string {
	tsB32 := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString([]byte(strconv.Itoa(ts)))
	sig := sign(hashValue(usr, purpose, ts), purpose, secretKey)
	return fmt.Sprintf("%s-%s", tsB32, sig)
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val []byte, purpose TokenPurpose, secretKey []byte) string {
	salt := []byte(saltPrefix + string(purpose))
	key := sha256.Sum256(append(salt, secretKey...))
	h := hmac.New(sha256.New, key[:])
	_, _ = h.Write(val)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// hashValue mixes in the user state that a successful use of the token changes,
// so that every token is single use.
func hashValue(usr User, purpose TokenPurpose, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	switch purpose {
	case PasswordResetToken:
		val.Write(usr.PasswordHash)
		if usr.LastLogin != nil {
			val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
		}
	case EmailVerificationToken:
		val.WriteString(usr.Email)
		val.WriteString(strconv.FormatBool(usr.EmailVerified))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
