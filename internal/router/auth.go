package router

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// BasicAuth guards next with a fixed credential pair.
// With both user and pass empty the check is disabled.
func BasicAuth(user, pass string, next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) Response {
		if user == "" && pass == "" {
			return next(ctx, req)
		}
		if !basicAuthOK(req.Header("Authorization"), user, pass) {
			return Text(http.StatusUnauthorized, "Unauthorized")
		}
		return next(ctx, req)
	}
}

func basicAuthOK(header, user, pass string) bool {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return false
	}

	gotUser, gotPass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) == 1
	return userOK && passOK
}
