package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/utafrali/adexify/internal/domain"
	"github.com/utafrali/adexify/pkg/middleware"
	"github.com/utafrali/adexify/pkg/validator"
)

// decode reads a JSON body into dst. An empty body leaves dst untouched.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, validator.MaxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// identity resolves the caller. Middleware identity from a bearer token or
// trusted headers wins; body or query values only fill what is missing.
func identity(r *http.Request, userID, guestToken string) domain.Identity {
	ctx := r.Context()
	id := domain.Identity{
		UserID:     middleware.UserIDFromContext(ctx),
		GuestToken: middleware.GuestTokenFromContext(ctx),
	}
	if id.UserID == "" {
		id.UserID = strings.TrimSpace(userID)
	}
	if id.GuestToken == "" {
		id.GuestToken = strings.TrimSpace(guestToken)
	}
	return id
}

// queryUserID reads the user id from the query, accepting both spellings
// storefront clients send.
func queryUserID(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("user_id"); v != "" {
		return v
	}
	return q.Get("userId")
}
