package identity

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ProviderError is an error reported by the identity provider.
// Message is the provider's raw message, which callers translate for users.
type ProviderError struct {
	Status  int
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// ProviderMessage exposes the raw provider message for translation
func (e *ProviderError) ProviderMessage() string {
	return e.Message
}

// errorBody covers the error shapes returned by the auth API versions in the wild
type errorBody struct {
	Code             any    `json:"code"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func parseProviderError(status int, body []byte) *ProviderError {
	perr := &ProviderError{Status: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		perr.Code = eb.ErrorCode
		if perr.Code == "" && eb.Error != "" && eb.ErrorDescription != "" {
			perr.Code = eb.Error
		}
		for _, m := range []string{eb.Msg, eb.ErrorDescription, eb.Message, eb.Error} {
			if strings.TrimSpace(m) != "" {
				perr.Message = m
				break
			}
		}
	}

	if perr.Message == "" {
		perr.Message = fmt.Sprintf("identity provider responded with status %d", status)
	}
	return perr
}
