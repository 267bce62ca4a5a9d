package safety

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HatmanStack/canvas-demo/models"
)

func newTestFilter(url string) *Filter {
	return &Filter{
		endpoint:   url,
		token:      "test-token",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func encoded(t *testing.T) string {
	t.Helper()
	return base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
}

func TestCheckAccepts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "0", r.Header.Get("x-use-cache"))
		w.Write([]byte(`[{"label":"normal","score":0.95},{"label":"nsfw","score":0.05}]`))
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	assert.NoError(t, f.Check(context.Background(), encoded(t)))
}

func TestCheckRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"label":"nsfw","score":0.87},{"label":"normal","score":0.13}]`))
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	err := f.Check(context.Background(), encoded(t))
	assert.ErrorIs(t, err, models.ErrContentRejected)
	assert.Equal(t, models.NotAppropriateMessage, err.Error())
}

func TestCheckThresholdIsExclusive(t *testing.T) {
	// 分数恰好等于阈值时放行
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"label":"nsfw","score":0.1}]`))
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	assert.NoError(t, f.Check(context.Background(), encoded(t)))
}

func TestCheckRetriesWhileModelLoading(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.Write([]byte(`{"error":"Model is currently loading","estimated_time":0.01}`))
			return
		}
		w.Write([]byte(`[{"label":"nsfw","score":0.01}]`))
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	require.NoError(t, f.Check(context.Background(), encoded(t)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCheckMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	f := newTestFilter(srv.URL)
	var ce *models.ClassificationError
	require.ErrorAs(t, f.Check(context.Background(), encoded(t)), &ce)
}

func TestCheckInvalidEncoding(t *testing.T) {
	f := newTestFilter("http://unused")
	var ce *models.ClassificationError
	require.ErrorAs(t, f.Check(context.Background(), "%%% not base64 %%%"), &ce)
}

func TestCheckContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Model is currently loading","estimated_time":5}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := newTestFilter(srv.URL)
	var ce *models.ClassificationError
	require.ErrorAs(t, f.Check(ctx, encoded(t)), &ce)
}
