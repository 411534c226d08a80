package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/VK79/Radar12/internal/source"
)

// apiBaseURL is a package variable so tests can point the adapter at a
// local server.
var apiBaseURL = "https://api.vk.com/method"

const maxResponseBytes = 4 << 20

// Error codes worth telling apart, per https://dev.vk.com/en/reference/errors.
const (
	codeAuthFailed     = 5
	codeTooMany        = 6
	codeFlood          = 9
	codeInternal       = 10
	codeAccessDenied   = 15
	codeUserBanned     = 18
	codeRateLimit      = 29
	codeProfilePrivate = 30
	codeBadParam       = 100
	codeBadUserID      = 113
	codeGroupDenied    = 203
)

// apiError is the error envelope the API returns with HTTP 200.
type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// classify maps an API error to the engine's retry semantics: broken
// credentials and revoked access need operator action, throttling and
// upstream hiccups heal on the next cycle.
func classify(e *apiError) error {
	switch e.Code {
	case codeAuthFailed:
		return source.Fatal(e)
	case codeAccessDenied, codeUserBanned, codeProfilePrivate, codeGroupDenied, codeBadParam, codeBadUserID:
		return source.Fatal(e)
	case codeTooMany, codeFlood, codeInternal, codeRateLimit:
		return source.Transient(e)
	default:
		return source.Transient(e)
	}
}

func (a *Adapter) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return source.Transient(err)
	}
	params.Set("access_token", a.token)
	params.Set("v", a.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+"/"+method+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return source.Transient(fmt.Errorf("%s: %w", method, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return source.Transientf("%s: unexpected status %d", method, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return source.Transient(fmt.Errorf("%s: read response: %w", method, err))
	}
	var env struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return source.Transient(fmt.Errorf("%s: decode response: %w", method, err))
	}
	if env.Error != nil {
		return fmt.Errorf("%s: %w", method, classify(env.Error))
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return source.Transient(fmt.Errorf("%s: decode response: %w", method, err))
		}
	}
	return nil
}
