package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var netdataSamples = map[string]string{
	"system.cpu":    `{"labels":["time","user","system","iowait"],"data":[[1700000000,10.5,4.25,0.25]]}`,
	"system.ram":    `{"labels":["time","free","used","cached","buffers"],"data":[[1700000000,1000,2000,800,200]]}`,
	"system.load":   `{"labels":["time","load1","load5","load15"],"data":[[1700000000,0.5,0.75,1]]}`,
	"system.net":    `{"labels":["time","received","sent"],"data":[[1700000000,1200.123,-300]]}`,
	"system.uptime": `{"labels":["time","uptime"],"data":[[1700000000,86400]]}`,
	"disk_space._":  `{"labels":["time","avail","used","reserved for root"],"data":[[1700000000,60,35,5]]}`,
}

func netdataServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/api/v1/info":
			fmt.Fprint(w, `{"version":"v1.44.0"}`)
		case "/api/v1/charts":
			fmt.Fprint(w, `{"charts":{"system.cpu":{},"system.ram":{},"system.load":{},"apps.cpu":{}}}`)
		case "/api/v1/data":
			body, ok := netdataSamples[r.URL.Query().Get("chart")]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprint(w, body)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNetdata_Capabilities_dynamic(t *testing.T) {
	d := newTestDriver(t, models.ServiceNetdata, netdataServer(t, ""), models.Credentials{})
	caps, err := d.Capabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.MetricCapability{
		models.CapabilityCPUUsage,
		models.CapabilityMemoryUsage,
		models.CapabilityLoadAverage,
	}, caps)
}

func TestNetdata_FetchMetric(t *testing.T) {
	d := newTestDriver(t, models.ServiceNetdata, netdataServer(t, "tok"), models.Credentials{Token: "tok"})
	ctx := context.Background()

	tests := []struct {
		capability models.MetricCapability
		want       any
		unit       string
	}{
		{models.CapabilityCPUUsage, 15.0, "%"},
		{models.CapabilityMemoryUsage, 50.0, "%"},
		{models.CapabilityDiskUsage, 35.0, "%"},
		{models.CapabilityNetworkTraffic, 1200.12, "kbit/s"},
		{models.CapabilityLoadAverage, 0.5, ""},
		{models.CapabilityUptime, 86400.0, "s"},
	}
	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			md, err := d.FetchMetric(ctx, tt.capability)
			require.NoError(t, err)
			assert.Equal(t, tt.want, md.Value)
			assert.Equal(t, tt.unit, md.Unit)
		})
	}
}

func TestNetdata_Metadata(t *testing.T) {
	d := newTestDriver(t, models.ServiceNetdata, netdataServer(t, ""), models.Credentials{})
	md, err := d.FetchMetric(context.Background(), models.CapabilityNetworkTraffic)
	require.NoError(t, err)
	assert.Equal(t, 300.0, md.Metadata["sent"])

	md, err = d.FetchMetric(context.Background(), models.CapabilityLoadAverage)
	require.NoError(t, err)
	assert.Equal(t, 1.0, md.Metadata["load15"])
}

func TestNetdata_Unsupported(t *testing.T) {
	d := newTestDriver(t, models.ServiceNetdata, netdataServer(t, ""), models.Credentials{})
	_, err := d.FetchMetric(context.Background(), models.CapabilityServices)
	assert.True(t, models.IsUnsupportedCapability(err))
}

func TestNetdata_TestConnection(t *testing.T) {
	d := newTestDriver(t, models.ServiceNetdata, netdataServer(t, "tok"), models.Credentials{Token: "tok"})
	res := d.TestConnection(context.Background())
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "v1.44.0")

	unauth := newTestDriver(t, models.ServiceNetdata, netdataServer(t, "tok"), models.Credentials{})
	assert.False(t, unauth.TestConnection(context.Background()).Success)
}
