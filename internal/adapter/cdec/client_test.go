package cdec

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrowatch/reservoir-pipeline/internal/config"
)

const sampleBody = "STATION_ID,OBS DATE,VALUE\nORO,2022-01-01,450.2\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		CDECBaseURL:  srv.URL,
		CDECTimeout:  2 * time.Second,
		SensorNumber: "6",
		DurationCode: "D",
	}
	return NewClient(cfg, discardLogger())
}

func TestClient_Fetch(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		gotQuery = map[string]string{
			"Stations":   q.Get("Stations"),
			"SensorNums": q.Get("SensorNums"),
			"dur_code":   q.Get("dur_code"),
			"Start":      q.Get("Start"),
			"End":        q.Get("End"),
		}
		w.Write([]byte(sampleBody)) //nolint:errcheck
	})

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 1, 31, 0, 0, 0, 0, time.UTC)

	body, err := client.Fetch(context.Background(), "ORO", start, end)

	require.NoError(t, err)
	assert.Equal(t, sampleBody, body)
	assert.Equal(t, map[string]string{
		"Stations":   "ORO",
		"SensorNums": "6",
		"dur_code":   "D",
		"Start":      "2022-01-01",
		"End":        "2022-01-31",
	}, gotQuery)
}

func TestClient_FetchUpstreamStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Fetch(context.Background(), "SHA", time.Now(), time.Now())

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestClient_FetchTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(sampleBody)) //nolint:errcheck
	})
	client.rest.SetTimeout(20 * time.Millisecond)

	_, err := client.Fetch(context.Background(), "SHA", time.Now(), time.Now())

	assert.ErrorIs(t, err, ErrUpstream)
}

func TestStaging_Stage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "csv_data")
	staging := NewStaging(dir)

	path, err := staging.Stage("Lake_Oroville", sampleBody)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Lake_Oroville.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, sampleBody, string(data))
}

func TestStaging_Overwrites(t *testing.T) {
	staging := NewStaging(t.TempDir())

	_, err := staging.Stage("Shasta_Lake", "old")
	require.NoError(t, err)
	path, err := staging.Stage("Shasta_Lake", "new")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
