package handler

import (
	"bytes"
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
)

const (
	// AccessTokenHeader carries the shared access token.
	AccessTokenHeader = "X-Access-Token"

	msgInvalidToken = "Invalid or missing access token"
)

// RequireAccessToken rejects requests that do not present token, either in
// the X-Access-Token header or as the "access_token" field of a JSON body.
// The body is restored for the next handler.
func RequireAccessToken(token string) func(http.Handler) http.Handler {
	expected := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(AccessTokenHeader)
			if presented == "" && r.Body != nil {
				data, err := readBody(w, r)
				if err != nil {
					writeDetail(w, http.StatusBadRequest, msgMalformedBody)
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(data))
				presented = bodyAccessToken(data)
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
				zctx.From(r.Context()).Debug("Access token rejected")
				writeDetail(w, http.StatusBadRequest, msgInvalidToken)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bodyAccessToken extracts the access_token field, ignoring decode errors;
// the downstream handler reports malformed bodies.
func bodyAccessToken(data []byte) string {
	var token string
	_ = decodeObject(data, func(d *jx.Decoder, key string) error {
		if key != "access_token" || d.Next() != jx.String {
			return d.Skip()
		}
		v, err := d.Str()
		token = v
		return err
	})
	return token
}
