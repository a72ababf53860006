package identity_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/petercegoh/cs203-MatchMage/internal/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toolkitServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRESTSignInClient_Success(t *testing.T) {
	srv := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, identity.SignInPath, r.URL.Path)
		assert.Equal(t, "api key", r.URL.Query().Get("key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "mage@matchmage.app", body["email"])
		assert.Equal(t, "Secret1!", body["password"])
		assert.Equal(t, true, body["returnSecureToken"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"idToken":"token-abc","localId":"uid-1","email":"mage@matchmage.app"}`))
	})

	client := identity.NewRESTSignInClient(srv.URL, "api key", time.Second)
	token, err := client.SignInWithPassword(context.Background(), "mage@matchmage.app", "Secret1!")
	require.NoError(t, err)
	assert.Equal(t, "token-abc", token)
}

func TestRESTSignInClient_ErrorBody(t *testing.T) {
	srv := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"TOO_MANY_ATTEMPTS_TRY_LATER : Access to this account has been temporarily disabled."}}`))
	})

	client := identity.NewRESTSignInClient(srv.URL, "key", time.Second)
	_, err := client.SignInWithPassword(context.Background(), "mage@matchmage.app", "Secret1!")

	var signInErr *identity.SignInError
	require.ErrorAs(t, err, &signInErr)
	assert.Equal(t, http.StatusBadRequest, signInErr.StatusCode)
	assert.True(t, signInErr.ClientError())
	assert.False(t, signInErr.ServerError())
	assert.Contains(t, signInErr.Code, "TOO_MANY_ATTEMPTS_TRY_LATER")
	assert.Contains(t, signInErr.Message, "400 Bad Request")
	assert.Contains(t, signInErr.Message, "temporarily disabled")
}

func TestRESTSignInClient_ServerError(t *testing.T) {
	srv := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	})

	client := identity.NewRESTSignInClient(srv.URL, "key", time.Second)
	_, err := client.SignInWithPassword(context.Background(), "mage@matchmage.app", "Secret1!")

	var signInErr *identity.SignInError
	require.ErrorAs(t, err, &signInErr)
	assert.True(t, signInErr.ServerError())
	assert.Empty(t, signInErr.Code)
	assert.Contains(t, signInErr.Message, "backend down")
}

func TestRESTSignInClient_MissingToken(t *testing.T) {
	srv := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"localId":"uid-1"}`))
	})

	client := identity.NewRESTSignInClient(srv.URL, "key", time.Second)
	_, err := client.SignInWithPassword(context.Background(), "mage@matchmage.app", "Secret1!")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "no idToken")
	var signInErr *identity.SignInError
	assert.False(t, errors.As(err, &signInErr))
}

func TestRESTSignInClient_Timeout(t *testing.T) {
	srv := toolkitServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	client := identity.NewRESTSignInClient(srv.URL, "key", 20*time.Millisecond)
	_, err := client.SignInWithPassword(context.Background(), "mage@matchmage.app", "Secret1!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign-in request failed")
}
