package safety

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DigoevR/4z-ape/internal/config"
)

func sourceServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sourceCheck(url string, allowUnverified bool) *SourceCodeCheck {
	return NewSourceCodeCheck(config.SourceCodeConfig{
		Enabled:         true,
		APIURL:          url,
		APIKey:          "test-key",
		AllowUnverified: allowUnverified,
	}, nil)
}

func TestSourceCodeCleanContractPasses(t *testing.T) {
	srv := sourceServer(t, `{"message":"OK","result":[{"SourceCode":"contract Token { function transfer() public {} }"}]}`)
	assert.True(t, sourceCheck(srv.URL, false).Check(context.Background(), testToken))
}

func TestSourceCodeOffendingFragmentRejects(t *testing.T) {
	srv := sourceServer(t, `{"message":"OK","result":[{"SourceCode":"contract Token { // account is freez }"}]}`)
	assert.False(t, sourceCheck(srv.URL, false).Check(context.Background(), testToken))
}

func TestSourceCodeUnverifiedContract(t *testing.T) {
	body := `{"message":"NOTOK","result":"Contract source code not verified"}`

	srv := sourceServer(t, body)
	assert.False(t, sourceCheck(srv.URL, false).Check(context.Background(), testToken))
	assert.True(t, sourceCheck(srv.URL, true).Check(context.Background(), testToken))
}

func TestSourceCodeEmptySourceIsUnverified(t *testing.T) {
	srv := sourceServer(t, `{"message":"OK","result":[{"SourceCode":""}]}`)
	assert.False(t, sourceCheck(srv.URL, false).Check(context.Background(), testToken))
}

func TestSourceCodeUnreachableAPIFailsClosed(t *testing.T) {
	srv := sourceServer(t, "")
	srv.Close()
	assert.False(t, sourceCheck(srv.URL, false).Check(context.Background(), testToken))
}

func TestSourceCodeGarbageResponseFailsClosed(t *testing.T) {
	srv := sourceServer(t, "<html>rate limited</html>")
	assert.False(t, sourceCheck(srv.URL, false).Check(context.Background(), testToken))
}

func TestSourceCodeDisabledPasses(t *testing.T) {
	c := NewSourceCodeCheck(config.SourceCodeConfig{Enabled: false}, nil)
	assert.True(t, c.Check(context.Background(), testToken))
}
