package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func signRequest(authToken, fullURL string, params url.Values) string {
	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params.Get(k)
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func newGuardedEcho(authToken string) *echo.Echo {
	e := echo.New()
	e.Use(TwilioAuth(func() string { return authToken }, "/"))
	e.POST("/", func(c echo.Context) error {
		params, _ := c.Get("twilioParams").(map[string]string)
		return c.String(http.StatusOK, "CallSid="+params["CallSid"])
	})
	e.POST("/other", func(c echo.Context) error {
		return c.String(http.StatusOK, "open")
	})
	return e
}

func TestTwilioAuth_ValidSignature(t *testing.T) {
	const token = "auth-token"
	e := newGuardedEcho(token)

	form := url.Values{"CallSid": {"CA123"}, "From": {"+15550001111"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Host = "voice.example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", signRequest(token, "https://voice.example.com/", form))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "CallSid=CA123" {
		t.Errorf("params not exposed to handler: %q", rec.Body.String())
	}
}

func TestTwilioAuth_RejectsBadSignature(t *testing.T) {
	e := newGuardedEcho("auth-token")

	form := url.Values{"CallSid": {"CA123"}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Host = "voice.example.com"
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Twilio-Signature", "bogus")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTwilioAuth_RejectsMissingSignature(t *testing.T) {
	e := newGuardedEcho("auth-token")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("CallSid=CA123"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTwilioAuth_UnguardedPathPassesThrough(t *testing.T) {
	e := newGuardedEcho("auth-token")

	req := httptest.NewRequest(http.MethodPost, "/other", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestTwilioAuth_EmptyTokenSkipsValidation(t *testing.T) {
	e := newGuardedEcho("")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("CallSid=CA999"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "CallSid=CA999" {
		t.Errorf("params should still be parsed: %q", rec.Body.String())
	}
}
