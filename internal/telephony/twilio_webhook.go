package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const headerTwilioSignature = "X-Twilio-Signature"

// Signature computes Twilio's request signature: HMAC-SHA1 over the full
// callback URL followed by every POST parameter as key+value in key order,
// base64 encoded.
func Signature(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		for _, v := range form[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidSignature checks X-Twilio-Signature against the request. publicURL is
// the externally visible scheme and host Twilio called; the request path and
// query are appended to it. r.ParseForm must have been called.
func ValidSignature(r *http.Request, authToken, publicURL string) bool {
	got := r.Header.Get(headerTwilioSignature)
	if got == "" {
		return false
	}
	full := strings.TrimRight(publicURL, "/") + r.URL.RequestURI()
	want := Signature(authToken, full, r.PostForm)
	return hmac.Equal([]byte(got), []byte(want))
}
