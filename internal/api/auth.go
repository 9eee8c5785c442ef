package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// initDataMaxAge rejects WebApp credentials older than a day.
const initDataMaxAge = 24 * time.Hour

// AuthError is a failed Telegram WebApp init-data validation.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "telegram auth: " + e.Reason
}

type webAppUser struct {
	ID int64 `json:"id"`
}

// ValidateInitData checks the signature and freshness of a Telegram Mini App
// init-data string and returns the authenticated user ID.
//
// The signature scheme is the documented one: the secret key is
// HMAC-SHA256("WebAppData", botToken); the expected hash is HMAC-SHA256 of
// the remaining parameters sorted by key and joined as "k=v" lines.
func ValidateInitData(initData, botToken string, now time.Time) (int64, error) {
	if initData == "" || botToken == "" {
		return 0, &AuthError{Reason: "missing credentials"}
	}

	values, err := url.ParseQuery(initData)
	if err != nil {
		return 0, &AuthError{Reason: "malformed init data"}
	}

	receivedHash := values.Get("hash")
	if receivedHash == "" {
		return 0, &AuthError{Reason: "missing hash"}
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(receivedHash), []byte(expected)) {
		return 0, &AuthError{Reason: "invalid signature"}
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return 0, &AuthError{Reason: "invalid auth_date"}
	}
	if age := now.Sub(time.Unix(authDate, 0)); age > initDataMaxAge {
		return 0, &AuthError{Reason: fmt.Sprintf("authentication expired (%s old)", age.Round(time.Second))}
	}

	var user webAppUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return 0, &AuthError{Reason: "missing user data"}
	}

	return user.ID, nil
}
