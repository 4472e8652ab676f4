package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestDriver(t *testing.T, st models.ServiceType, srv *httptest.Server, creds models.Credentials) Driver {
	t.Helper()
	creds.URL = srv.URL + "/"
	d, err := New(st, creds, WithTimeout(2*time.Second), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return d
}

func TestNew_validation(t *testing.T) {
	tests := []struct {
		name  string
		st    models.ServiceType
		creds models.Credentials
	}{
		{"missing url", models.ServiceNetdata, models.Credentials{}},
		{"unknown type", models.ServiceType("zabbix"), models.Credentials{URL: "http://x"}},
		{"kuma without key", models.ServiceUptimeKuma, models.Credentials{URL: "http://x"}},
		{"unraid without key", models.ServiceUnraid, models.Credentials{URL: "http://x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.st, tt.creds)
			require.Error(t, err)
			assert.True(t, models.IsConfiguration(err), "want configuration error, got %v", err)
		})
	}
}

func TestNew_variants(t *testing.T) {
	for _, st := range models.ServiceTypes() {
		d, err := New(st, models.Credentials{URL: "http://x", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, st, d.Type())
		assert.NotEmpty(t, d.DisplayName())
	}
}

func TestNewFactory_applies_options(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"version":"v1"}`))
	}))
	defer srv.Close()

	d, err := NewFactory(WithTimeout(time.Second))(models.ServiceNetdata, models.Credentials{URL: srv.URL})
	require.NoError(t, err)
	res := d.TestConnection(context.Background())
	assert.True(t, res.Success)
	assert.Contains(t, gotUA, "PulseDeck/")
}

func TestTimeout_is_connection_error(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	d, err := New(models.ServiceNetdata, models.Credentials{URL: srv.URL}, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)

	_, err = d.FetchMetric(context.Background(), models.CapabilityCPUUsage)
	require.Error(t, err)
	assert.True(t, models.IsConnection(err))

	res := d.TestConnection(context.Background())
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "failed to connect")
}
