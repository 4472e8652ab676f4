package driver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HerbHall/pulsedeck/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unraidServer(t *testing.T, dockerEnabled bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "unraid-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/graphql" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		q := r.URL.Query().Get("query")
		switch {
		case strings.Contains(q, "online"):
			fmt.Fprint(w, `{"data":{"online":true}}`)
		case strings.Contains(q, "metrics"):
			fmt.Fprint(w, `{"data":{"metrics":{"cpu":{"percentTotal":12.3456},"memory":{"percentTotal":40,"total":"1000","used":"400"}}}}`)
		case strings.Contains(q, "array"):
			fmt.Fprint(w, `{"data":{"array":{"state":"STARTED","capacity":{"kilobytes":{"free":"750","used":"250","total":"1000"}}}}}`)
		case strings.Contains(q, "docker"):
			if !dockerEnabled {
				fmt.Fprint(w, `{"data":null,"errors":[{"message":"Docker is not running"}]}`)
				return
			}
			fmt.Fprint(w, `{"data":{"docker":{"containers":[{"names":["/plex"],"state":"RUNNING"},{"names":["/sonarr"],"state":"EXITED"}]}}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUnraid_Capabilities(t *testing.T) {
	creds := models.Credentials{APIKey: "unraid-key"}

	d := newTestDriver(t, models.ServiceUnraid, unraidServer(t, true), creds)
	caps, err := d.Capabilities(context.Background())
	require.NoError(t, err)
	assert.Contains(t, caps, models.CapabilityDockerContainers)
	assert.Len(t, caps, 5)

	noDocker := newTestDriver(t, models.ServiceUnraid, unraidServer(t, false), creds)
	caps, err = noDocker.Capabilities(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, caps, models.CapabilityDockerContainers)
}

func TestUnraid_FetchMetric(t *testing.T) {
	d := newTestDriver(t, models.ServiceUnraid, unraidServer(t, true), models.Credentials{APIKey: "unraid-key"})
	ctx := context.Background()

	md, err := d.FetchMetric(ctx, models.CapabilityCPUUsage)
	require.NoError(t, err)
	assert.Equal(t, 12.35, md.Value)

	md, err = d.FetchMetric(ctx, models.CapabilityMemoryUsage)
	require.NoError(t, err)
	assert.Equal(t, 40.0, md.Value)
	assert.Equal(t, 400.0, md.Metadata["used_bytes"])

	md, err = d.FetchMetric(ctx, models.CapabilityArrayStatus)
	require.NoError(t, err)
	assert.Equal(t, "started", md.Value)

	md, err = d.FetchMetric(ctx, models.CapabilityDiskUsage)
	require.NoError(t, err)
	assert.Equal(t, 25.0, md.Value)

	md, err = d.FetchMetric(ctx, models.CapabilityDockerContainers)
	require.NoError(t, err)
	assert.Equal(t, 1, md.Value)
	assert.Equal(t, 2, md.Metadata["total"])
}

func TestUnraid_GraphQLError(t *testing.T) {
	d := newTestDriver(t, models.ServiceUnraid, unraidServer(t, false), models.Credentials{APIKey: "unraid-key"})
	_, err := d.FetchMetric(context.Background(), models.CapabilityDockerContainers)
	require.Error(t, err)
	assert.True(t, models.IsConnection(err))
	assert.Contains(t, err.Error(), "Docker is not running")
}

func TestUnraid_Unsupported(t *testing.T) {
	d := newTestDriver(t, models.ServiceUnraid, unraidServer(t, true), models.Credentials{APIKey: "unraid-key"})
	_, err := d.FetchMetric(context.Background(), models.CapabilityServices)
	assert.True(t, models.IsUnsupportedCapability(err))
}

func TestUnraid_TestConnection(t *testing.T) {
	d := newTestDriver(t, models.ServiceUnraid, unraidServer(t, true), models.Credentials{APIKey: "unraid-key"})
	assert.True(t, d.TestConnection(context.Background()).Success)

	bad := newTestDriver(t, models.ServiceUnraid, unraidServer(t, true), models.Credentials{APIKey: "nope"})
	assert.False(t, bad.TestConnection(context.Background()).Success)
}
