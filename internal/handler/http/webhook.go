package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/adexify/internal/provider"
	"github.com/utafrali/adexify/internal/provider/paystack"
	apperrors "github.com/utafrali/adexify/pkg/errors"
	"github.com/utafrali/adexify/pkg/httputil"
	"github.com/utafrali/adexify/pkg/validator"
)

type rawBodyKey struct{}

// WebhookSignature reads the body once, rejects it with 401 unless the
// gateway accepts its signature, and keeps the verified bytes for the
// handler.
func WebhookSignature(gw provider.Gateway, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, validator.MaxBodyBytes))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
						Message: "webhook body too large",
						Error:   &httputil.ErrorResponse{Code: "INVALID_INPUT"},
					})
					return
				}
				httputil.WriteError(w, r, apperrors.InvalidInput("could not read webhook body"), logger)
				return
			}

			sig := r.Header.Get(paystack.SignatureHeader)
			if sig == "" || !gw.VerifyWebhookSignature(body, sig) {
				logger.WarnContext(r.Context(), "webhook signature rejected",
					slog.String("provider", gw.Name()),
					slog.Bool("signature_present", sig != ""),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid webhook signature"), logger)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), rawBodyKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func verifiedBody(ctx context.Context) []byte {
	b, _ := ctx.Value(rawBodyKey{}).([]byte)
	return b
}
