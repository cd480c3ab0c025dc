package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
	"github.com/hydrowatch/reservoir-pipeline/internal/observability"
	"github.com/hydrowatch/reservoir-pipeline/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const fetchHeader = "STATION_ID,DURATION,SENSOR_NUMBER,SENSOR_TYPE,DATE TIME,OBS DATE,VALUE,DATA_FLAG,UNITS\n"

// stubFetcher serves canned CSV text per station and errors for the rest.
type stubFetcher struct {
	byStation map[string]string
	calls     []string
}

func (f *stubFetcher) Fetch(_ context.Context, cdecID string, _, _ time.Time) (string, error) {
	f.calls = append(f.calls, cdecID)
	text, ok := f.byStation[cdecID]
	if !ok {
		return "", errors.New("upstream unavailable")
	}
	return text, nil
}

type stubStager struct {
	failFor string
	staged  map[string]string
}

func (s *stubStager) Stage(stationName, text string) (string, error) {
	if stationName == s.failFor {
		return "", errors.New("disk full")
	}
	if s.staged == nil {
		s.staged = map[string]string{}
	}
	s.staged[stationName] = text
	return "csv_data/" + stationName + ".csv", nil
}

// stubStore records inserts and optionally fails whole batches.
type stubStore struct {
	failInsert bool
	inserted   []domain.RawObservation
	filtered   []domain.FilteredReading
}

func (s *stubStore) InsertObservations(_ context.Context, rows []domain.RawObservation) (store.InsertSummary, error) {
	if s.failInsert {
		return store.InsertSummary{Rejected: len(rows)}, errors.New("store down")
	}
	s.inserted = append(s.inserted, rows...)
	return store.InsertSummary{Accepted: len(rows)}, nil
}

func (s *stubStore) InsertFilteredReading(_ context.Context, r domain.FilteredReading) error {
	s.filtered = append(s.filtered, r)
	return nil
}

func newTestFetchRun(f Fetcher, stage Stager, store ObservationStore) *FetchRun {
	return NewFetchRun(f, stage, store, discardLogger(), observability.NewMetricsForTesting())
}

func TestFetchRunVisitsEveryStation(t *testing.T) {
	fetcher := &stubFetcher{byStation: map[string]string{}}
	for _, s := range domain.Stations {
		fetcher.byStation[s.CdecID] = fetchHeader +
			s.CdecID + ",D,6,RES ELE,20220102 0000,2022-01-02,512.5,,FEET\n"
	}
	st := &stubStore{}

	run := newTestFetchRun(fetcher, &stubStager{}, st)
	results := run.Run(context.Background(), date(t, "2022-01-01"), date(t, "2022-01-31"))

	require.Len(t, results, len(domain.Stations))
	require.Len(t, fetcher.calls, len(domain.Stations))
	for _, s := range domain.Stations {
		r, ok := results[s.Name]
		require.True(t, ok, "missing result for %s", s.Name)
		assert.Empty(t, r.Error)
		assert.Equal(t, 1, r.Rows)
		assert.Equal(t, 1, r.Accepted)
		assert.Equal(t, "csv_data/"+s.Name+".csv", r.Staged)
	}
	assert.Len(t, st.inserted, len(domain.Stations))
	assert.Len(t, st.filtered, len(domain.Stations))
}

func TestFetchRunIsolatesStationFailures(t *testing.T) {
	// ORO has no canned response, so its fetch fails; SHA must still land.
	fetcher := &stubFetcher{byStation: map[string]string{
		"SHA": fetchHeader + "SHA,D,6,RES ELE,,2022-01-02,900.1,,FEET\n",
	}}
	st := &stubStore{}

	run := newTestFetchRun(fetcher, &stubStager{}, st)
	results := run.Run(context.Background(), date(t, "2022-01-01"), date(t, "2022-01-31"))

	require.Len(t, results, len(domain.Stations))
	assert.Empty(t, results["Shasta_Lake"].Error)
	assert.Equal(t, 1, results["Shasta_Lake"].Accepted)
	assert.NotEmpty(t, results["Lake_Oroville"].Error)
	assert.Zero(t, results["Lake_Oroville"].Accepted)

	require.Len(t, st.inserted, 1)
	assert.Equal(t, "SHA", st.inserted[0].StationID)
}

func TestFetchRunRejectsUnkeyableRows(t *testing.T) {
	fetcher := &stubFetcher{byStation: map[string]string{}}
	for _, s := range domain.Stations {
		fetcher.byStation[s.CdecID] = fetchHeader
	}
	// SHA gets one good row, one row with no station and no date.
	fetcher.byStation["SHA"] = fetchHeader +
		"SHA,D,6,RES ELE,,2022-01-02,\"1,234.5\",,FEET\n" +
		",D,6,RES ELE,,,7.0,,FEET\n"
	st := &stubStore{}

	run := newTestFetchRun(fetcher, &stubStager{}, st)
	results := run.Run(context.Background(), date(t, "2022-01-01"), date(t, "2022-01-31"))

	r := results["Shasta_Lake"]
	assert.Equal(t, 2, r.Rows)
	assert.Equal(t, 1, r.Accepted)
	assert.Equal(t, 1, r.Rejected)

	require.Len(t, st.inserted, 1)
	require.NotNil(t, st.inserted[0].Value)
	assert.Equal(t, 1234.5, *st.inserted[0].Value)
}

func TestFetchRunStagingFailureDoesNotBlockStore(t *testing.T) {
	fetcher := &stubFetcher{byStation: map[string]string{}}
	for _, s := range domain.Stations {
		fetcher.byStation[s.CdecID] = fetchHeader +
			s.CdecID + ",D,6,RES ELE,,2022-01-02,100,,FEET\n"
	}
	st := &stubStore{}

	run := newTestFetchRun(fetcher, &stubStager{failFor: "Shasta_Lake"}, st)
	results := run.Run(context.Background(), date(t, "2022-01-01"), date(t, "2022-01-31"))

	r := results["Shasta_Lake"]
	assert.Empty(t, r.Error)
	assert.Empty(t, r.Staged)
	assert.Equal(t, 1, r.Accepted)
}

func TestFetchRunReportsBatchRollback(t *testing.T) {
	fetcher := &stubFetcher{byStation: map[string]string{}}
	for _, s := range domain.Stations {
		fetcher.byStation[s.CdecID] = fetchHeader +
			s.CdecID + ",D,6,RES ELE,,2022-01-02,100,,FEET\n"
	}
	st := &stubStore{failInsert: true}

	run := newTestFetchRun(fetcher, &stubStager{}, st)
	results := run.Run(context.Background(), date(t, "2022-01-01"), date(t, "2022-01-31"))

	for _, s := range domain.Stations {
		r := results[s.Name]
		assert.NotEmpty(t, r.Error)
		assert.Zero(t, r.Accepted)
		assert.Equal(t, 1, r.Rejected)
	}
	assert.Empty(t, st.filtered)
}

func TestFetchRunSkipsNilValuesInFilteredFeed(t *testing.T) {
	fetcher := &stubFetcher{byStation: map[string]string{}}
	for _, s := range domain.Stations {
		fetcher.byStation[s.CdecID] = fetchHeader
	}
	fetcher.byStation["ORO"] = fetchHeader +
		"ORO,D,6,RES ELE,,2022-01-02,n/a,,FEET\n" +
		"ORO,D,6,RES ELE,,2022-01-03,655.2,,FEET\n"
	st := &stubStore{}

	run := newTestFetchRun(fetcher, &stubStager{}, st)
	results := run.Run(context.Background(), date(t, "2022-01-01"), date(t, "2022-01-31"))

	// Both rows are stored; only the numeric one feeds the summary table.
	assert.Equal(t, 2, results["Lake_Oroville"].Accepted)
	require.Len(t, st.filtered, 1)
	assert.Equal(t, "ORO", st.filtered[0].CdecID)
	assert.Equal(t, 655.2, st.filtered[0].Feet)
}

func TestFetchRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := &stubFetcher{byStation: map[string]string{}}
	run := newTestFetchRun(fetcher, &stubStager{}, &stubStore{})
	results := run.Run(ctx, date(t, "2022-01-01"), date(t, "2022-01-31"))

	assert.Empty(t, results)
	assert.Empty(t, fetcher.calls)
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	require.NoError(t, err)
	return d
}
