package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/adexify/pkg/errors"
)

const maxBodyBytes = 1 << 20

// providerEnvelope is the common shape of payment provider answers:
// {"status": bool, "message": string, "data": ...}.
type providerEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// DecodeEnvelope reads a provider answer, closes the body and decodes its
// data into out. A non-2xx status or "status": false becomes a
// GatewayRejected error carrying the provider's message; an unreadable body
// becomes a Gateway error.
func DecodeEnvelope(resp *http.Response, provider string, out any) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return apperrors.Gateway(provider+": read response", err)
	}

	var env providerEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		if !IsSuccess(resp.StatusCode) {
			return apperrors.GatewayRejected(fmt.Sprintf("%s returned status %d", provider, resp.StatusCode))
		}
		return apperrors.Gateway(provider+": decode response", err)
	}

	if !IsSuccess(resp.StatusCode) || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = fmt.Sprintf("request rejected with status %d", resp.StatusCode)
		}
		return apperrors.GatewayRejected(fmt.Sprintf("%s: %s", provider, msg))
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperrors.Gateway(provider+": decode response data", err)
	}
	return nil
}

func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
