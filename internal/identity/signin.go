package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SignInPath is the identity toolkit password exchange endpoint.
const SignInPath = "/v1/accounts:signInWithPassword"

// SignInError is a non-200 answer from the token endpoint.
type SignInError struct {
	StatusCode int
	// Code is the toolkit error code (error.message of the body) when present.
	Code string
	// Message is the status line followed by the raw response body.
	Message string
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newSignInError(status int, code string) *SignInError {
	var body errorBody
	body.Error.Code = status
	body.Error.Message = code
	raw, _ := json.Marshal(body)
	return &SignInError{
		StatusCode: status,
		Code:       code,
		Message:    fmt.Sprintf("%d %s: %s", status, http.StatusText(status), raw),
	}
}

func (e *SignInError) Error() string {
	return e.Message
}

// ClientError reports a 4xx answer.
func (e *SignInError) ClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// ServerError reports a 5xx answer.
func (e *SignInError) ServerError() bool {
	return e.StatusCode >= 500
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	IDToken string `json:"idToken"`
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

// RESTSignInClient calls the identity toolkit REST API.
type RESTSignInClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewRESTSignInClient targets baseURL (e.g. https://identitytoolkit.googleapis.com
// or the local emulator mount point).
func NewRESTSignInClient(baseURL, apiKey string, timeout time.Duration) *RESTSignInClient {
	return &RESTSignInClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

func (c *RESTSignInClient) endpoint() string {
	return c.baseURL + SignInPath + "?key=" + url.QueryEscape(c.apiKey)
}

// SignInWithPassword returns the id token of a successful exchange.
func (c *RESTSignInClient) SignInWithPassword(ctx context.Context, email, password string) (string, error) {
	payload, err := json.Marshal(signInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign-in request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read sign-in response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var parsed errorBody
		_ = json.Unmarshal(body, &parsed)
		return "", &SignInError{
			StatusCode: resp.StatusCode,
			Code:       parsed.Error.Message,
			Message:    fmt.Sprintf("%d %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), bytes.TrimSpace(body)),
		}
	}

	var out signInResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to decode sign-in response: %w", err)
	}
	if out.IDToken == "" {
		return "", errors.New("sign-in response carries no idToken")
	}
	return out.IDToken, nil
}
