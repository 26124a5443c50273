package capability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchURLExtractsTextFromHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><script>var x = 1;</script></head>
<body><nav>Menu</nav><main><h1>Radverkehr</h1><p>Mehr Radwege in der Innenstadt.</p></main>
<footer>Impressum</footer></body></html>`))
	}))
	defer srv.Close()

	client := NewHTTPFetchClient(zap.NewNop())
	res, err := client.FetchURL(context.Background(), srv.URL, FetchOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.True(t, res.Success)

	assert.Contains(t, res.Content, "Radverkehr")
	assert.Contains(t, res.Content, "Mehr Radwege in der Innenstadt.")
	assert.NotContains(t, res.Content, "var x = 1")
	assert.NotContains(t, res.Content, "Impressum")
	assert.Greater(t, res.WordCount, 0)
}

func TestFetchURLHonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewHTTPFetchClient(zap.NewNop())
	_, err := client.FetchURL(context.Background(), srv.URL, FetchOptions{Timeout: 50 * time.Millisecond})
	assert.Error(t, err)
}

func TestFetchURLReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	client := NewHTTPFetchClient(zap.NewNop())
	_, err := client.FetchURL(context.Background(), srv.URL, FetchOptions{Timeout: time.Second})
	assert.Error(t, err)
}

func TestFetchURLCapsContentLength(t *testing.T) {
	long := make([]byte, 0, 20_000)
	for i := 0; i < 2000; i++ {
		long = append(long, []byte("wordwordil ")...)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(long)
	}))
	defer srv.Close()

	client := NewHTTPFetchClient(zap.NewNop())
	res, err := client.FetchURL(context.Background(), srv.URL, FetchOptions{
		Timeout:          time.Second,
		MaxContentLength: 500,
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.LessOrEqual(t, len(res.Content), 500)
}
