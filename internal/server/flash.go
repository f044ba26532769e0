package server

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	flashCookieName   = "clubsite_flash"
	flashCookieMaxAge = 60

	flashSuccess = "success"
	flashError   = "error"
)

// flashMessage is a one-shot notification carried across a redirect.
type flashMessage struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func setFlash(c *gin.Context, kind, text string) {
	encoded, err := json.Marshal(flashMessage{Kind: kind, Text: text})
	if err != nil {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookieName, base64.RawURLEncoding.EncodeToString(encoded), flashCookieMaxAge, "/", "", false, true)
}

// takeFlash reads and clears the pending flash message, if any.
func takeFlash(c *gin.Context) *flashMessage {
	raw, err := c.Cookie(flashCookieName)
	if err != nil || raw == "" {
		return nil
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(flashCookieName, "", -1, "/", "", false, true)

	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil
	}
	var message flashMessage
	if err := json.Unmarshal(decoded, &message); err != nil || message.Text == "" {
		return nil
	}
	return &message
}
