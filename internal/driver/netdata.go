package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/HerbHall/pulsedeck/pkg/models"
)

// netdataCharts maps capabilities to the Netdata chart that backs them, in
// the order capabilities are reported.
var netdataCharts = []struct {
	capability models.MetricCapability
	chart      string
}{
	{models.CapabilityUptime, "system.uptime"},
	{models.CapabilityCPUUsage, "system.cpu"},
	{models.CapabilityMemoryUsage, "system.ram"},
	{models.CapabilityDiskUsage, "disk_space._"},
	{models.CapabilityNetworkTraffic, "system.net"},
	{models.CapabilityLoadAverage, "system.load"},
}

type netdata struct {
	remote
	now func() time.Time
}

func newNetdata(creds models.Credentials, o options) (*netdata, error) {
	a := auth{mode: authNone}
	switch {
	case creds.Token != "":
		a = auth{mode: authBearer, secret: creds.Token}
	case creds.APIKey != "":
		a = auth{mode: authBearer, secret: creds.APIKey}
	case creds.Username != "":
		a = auth{mode: authBasic, username: creds.Username, secret: creds.Password}
	}
	return &netdata{remote: newRemote(creds, a, o), now: o.now}, nil
}

func (d *netdata) Type() models.ServiceType { return models.ServiceNetdata }
func (d *netdata) DisplayName() string      { return "Netdata" }

func (d *netdata) TestConnection(ctx context.Context) TestResult {
	var info struct {
		Version string `json:"version"`
	}
	res := probe(ctx, d.DisplayName(), func(ctx context.Context) error {
		return d.getJSON(ctx, "/api/v1/info", &info)
	})
	if res.Success && info.Version != "" {
		res.Message = fmt.Sprintf("%s %s", res.Message, info.Version)
	}
	return res
}

// Capabilities reports one capability per backing chart present on the
// node.
func (d *netdata) Capabilities(ctx context.Context) ([]models.MetricCapability, error) {
	var resp struct {
		Charts map[string]json.RawMessage `json:"charts"`
	}
	if err := d.getJSON(ctx, "/api/v1/charts", &resp); err != nil {
		return nil, err
	}
	var caps []models.MetricCapability
	for _, c := range netdataCharts {
		if _, ok := resp.Charts[c.chart]; ok {
			caps = append(caps, c.capability)
		}
	}
	return caps, nil
}

func (d *netdata) FetchMetric(ctx context.Context, c models.MetricCapability) (*models.MetricData, error) {
	chart := ""
	for _, nc := range netdataCharts {
		if nc.capability == c {
			chart = nc.chart
		}
	}
	if chart == "" {
		return nil, models.NewUnsupportedCapabilityError(c)
	}

	dims, err := d.latest(ctx, chart)
	if err != nil {
		return nil, err
	}
	md := &models.MetricData{Timestamp: d.now()}

	switch c {
	case models.CapabilityUptime:
		md.Value, md.Unit = dims["uptime"], "s"
	case models.CapabilityCPUUsage:
		md.Value, md.Unit = round2(sum(dims)), "%"
	case models.CapabilityMemoryUsage:
		md.Value, md.Unit = percentOf(dims["used"], sum(dims)), "%"
		md.Metadata = map[string]any{"used_mib": round2(dims["used"]), "total_mib": round2(sum(dims))}
	case models.CapabilityDiskUsage:
		md.Value, md.Unit = percentOf(dims["used"], sum(dims)), "%"
		md.Metadata = map[string]any{"used_gib": round2(dims["used"]), "avail_gib": round2(dims["avail"])}
	case models.CapabilityNetworkTraffic:
		md.Value, md.Unit = round2(math.Abs(dims["received"])), "kbit/s"
		md.Metadata = map[string]any{"sent": round2(math.Abs(dims["sent"]))}
	case models.CapabilityLoadAverage:
		md.Value = round2(dims["load1"])
		md.Metadata = map[string]any{"load5": round2(dims["load5"]), "load15": round2(dims["load15"])}
	}
	return md, nil
}

// latest returns the most recent sample of chart keyed by dimension name.
func (d *netdata) latest(ctx context.Context, chart string) (map[string]float64, error) {
	q := url.Values{}
	q.Set("chart", chart)
	q.Set("points", "1")
	q.Set("after", "-1")
	q.Set("format", "json")

	var resp struct {
		Labels []string    `json:"labels"`
		Data   [][]float64 `json:"data"`
	}
	if err := d.getJSON(ctx, "/api/v1/data?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, models.NewConnectionError("chart "+chart, fmt.Errorf("no samples returned"))
	}

	row := resp.Data[0]
	dims := make(map[string]float64, len(resp.Labels))
	for i, label := range resp.Labels {
		if label == "time" || i >= len(row) {
			continue
		}
		dims[label] = row[i]
	}
	return dims, nil
}

func sum(dims map[string]float64) float64 {
	total := 0.0
	for _, v := range dims {
		total += v
	}
	return total
}

func percentOf(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return round2(part / total * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
