package driver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/HerbHall/pulsedeck/internal/version"
	"github.com/HerbHall/pulsedeck/pkg/models"
)

type authMode int

const (
	authNone authMode = iota
	authBasic
	authBearer
	authHeader
)

type auth struct {
	mode     authMode
	username string
	secret   string
	header   string
}

// authRoundTripper injects credentials into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth auth
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", "PulseDeck/"+version.Short())
	switch t.auth.mode {
	case authBasic:
		req.SetBasicAuth(t.auth.username, t.auth.secret)
	case authBearer:
		req.Header.Set("Authorization", "Bearer "+t.auth.secret)
	case authHeader:
		req.Header.Set(t.auth.header, t.auth.secret)
	}
	return t.base.RoundTrip(req)
}

// remote is the HTTP plumbing shared by all variants.
type remote struct {
	baseURL string
	client  *http.Client
}

func newRemote(creds models.Credentials, a auth, o options) remote {
	base := o.transport
	if base == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if creds.InsecureSkipVerify {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // user-configured for self-signed homelab certs
		}
		base = tr
	}
	return remote{
		baseURL: strings.TrimRight(creds.URL, "/"),
		client: &http.Client{
			Transport: &authRoundTripper{base: base, auth: a},
			Timeout:   o.timeout,
		},
	}
}

// get performs a GET against path and returns the body. Transport failures
// and non-2xx responses are connection errors.
func (r remote) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+path, nil)
	if err != nil {
		return nil, models.NewConfigurationError("build request for %s: %v", path, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, models.NewConnectionError("GET "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, models.NewConnectionError("read "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, models.NewConnectionError("GET "+path, fmt.Errorf("status %d", resp.StatusCode))
	}
	return body, nil
}

func (r remote) getJSON(ctx context.Context, path string, out any) error {
	body, err := r.get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return models.NewConnectionError("decode "+path, err)
	}
	return nil
}

// probe runs fn and folds its error into a TestResult.
func probe(ctx context.Context, name string, fn func(ctx context.Context) error) TestResult {
	if err := fn(ctx); err != nil {
		return TestResult{Success: false, Message: fmt.Sprintf("failed to connect to %s: %v", name, err)}
	}
	return TestResult{Success: true, Message: fmt.Sprintf("successfully connected to %s", name)}
}
