package auth

import "net/url"

// State is the position of one page load in the authorization lifecycle
type State int

const (
	// StateNoAuth means no authorization code is present. A fresh verifier is
	// generated and the browser is sent to the provider.
	StateNoAuth State = iota
	// StateExchanging means a code is present but no usable token is
	// persisted. The code is traded for a token.
	StateExchanging
	// StateAuthenticated means a usable token is persisted.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateNoAuth:
		return "no_auth"
	case StateExchanging:
		return "exchanging"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// DetermineState maps the two external signals to a state. A usable token
// without a code still yields StateNoAuth.
func DetermineState(hasCode, tokenUsable bool) State {
	switch {
	case !hasCode:
		return StateNoAuth
	case tokenUsable:
		return StateAuthenticated
	default:
		return StateExchanging
	}
}

// Callback is what the provider appends to the redirect URI
type Callback struct {
	Code             string
	Error            string
	ErrorDescription string
}

// ParseCallback extracts the callback parameters from a query string
func ParseCallback(query url.Values) Callback {
	return Callback{
		Code:             query.Get("code"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}
}

// HasCode reports whether the callback carries a usable authorization code.
// A denied consent (error parameter) counts as no code.
func (c Callback) HasCode() bool {
	return c.Code != "" && c.Error == ""
}

// Denied reports whether the provider redirected back with an error
func (c Callback) Denied() bool {
	return c.Error != ""
}
