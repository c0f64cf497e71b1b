package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sepsiswatch/client"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAssessRendersVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"probability":0.35}`))
	}))
	defer server.Close()

	out, err := runCommand(t, "assess", "--url", server.URL, "--width", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "High Risk of Sepsis Detected")
	assert.Contains(t, out, "Sepsis Risk Score: 35.0%")
	assert.Contains(t, out, "[####------]")
}

func TestAssessConnectionError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := runCommand(t, "assess", "--url", url)
	var connErr *connectionError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, err.Error(), "Connection Error: Could not connect to the backend")
	assert.True(t, errors.Is(err, client.ErrConnection))
}

func TestAssessAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"feature HR: not a number","kind":"validation"}`))
	}))
	defer server.Close()

	_, err := runCommand(t, "assess", "--url", server.URL)
	require.Error(t, err)
	assert.Equal(t, "API Error: feature HR: not a number", err.Error())
}

func TestAssessRejectsOutOfRangeVitals(t *testing.T) {
	_, err := runCommand(t, "assess", "--url", "http://127.0.0.1:1", "--temp", "45")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Temp")
}

func TestRootCommandListsSubcommands(t *testing.T) {
	out, err := runCommand(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"serve", "train", "means", "assess", "runs"} {
		assert.Contains(t, out, name)
	}
}
