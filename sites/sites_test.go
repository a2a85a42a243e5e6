package sites

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/strata/models"
)

type fakeSite struct{ name string }

func (f fakeSite) Name() string { return f.name }
func (f fakeSite) ScrapeDetail(context.Context, string) (*models.DetailRecord, error) {
	return nil, nil
}

type fakeLister struct{ fakeSite }

func (fakeLister) ScrapeListing(context.Context, string, int) ([]models.ListingItem, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(fakeSite{"Zeta"}))
	require.NoError(t, r.Register(fakeLister{fakeSite{"alpha"}}))

	err := r.Register(fakeSite{"ZETA"})
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeConflict, models.ErrorCode(err))
	assert.Equal(t, models.ErrCodeInvalidInput, models.ErrorCode(r.Register(fakeSite{""})))

	s, ok := r.Get("zeta")
	require.True(t, ok)
	assert.Equal(t, "Zeta", s.Name())

	_, err = r.Lookup("missing")
	assert.Equal(t, models.ErrCodeNotFound, models.ErrorCode(err))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "Zeta", all[0].Name(), "sorted by name, uppercase first")
	assert.Equal(t, "alpha", all[1].Name())
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, []string{"detail"}, Capabilities(fakeSite{"a"}))
	assert.Equal(t, []string{"detail", "listing"}, Capabilities(fakeLister{fakeSite{"b"}}))
}

func testClient() *HTMLClient {
	c := NewHTMLClient()
	c.Pause = 0
	c.Timeout = 2 * time.Second
	return c
}

func TestHTMLClientRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "id-ID,id;q=0.9,en;q=0.8", r.Header.Get("Accept-Language"))
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><h1>Judul</h1></body></html>`))
	}))
	defer srv.Close()

	doc, err := testClient().Document(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Judul", doc.Find("h1").Text())
	assert.EqualValues(t, 3, hits.Load())
}

func TestHTMLClientDoesNotRetryNotFound(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient().Document(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeHTTPStatus, models.ErrorCode(err))
	assert.EqualValues(t, 1, hits.Load())
}

func TestHTMLClientPostForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		_, _ = w.Write([]byte("tab=" + r.PostForm.Get("tab")))
	}))
	defer srv.Close()

	body, err := testClient().PostForm(context.Background(), srv.URL,
		map[string]string{"tab": "p2"}, map[string]string{"X-Requested-With": "XMLHttpRequest"})
	require.NoError(t, err)
	assert.Equal(t, "tab=p2", string(body))
}

func TestHTMLClientCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testClient().Document(ctx, "http://127.0.0.1:1/")
	require.Error(t, err)
	assert.Equal(t, models.ErrCodeTimeout, models.ErrorCode(err))
}
