package checkmk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileShim is a Requester that emulates the Checkmk endpoints used by this
// application and keeps its state in a JSON file. It is meant for local
// development and tests.
type FileShim struct {
	filePath string
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	state shimState
}

type shimState struct {
	Hosts          map[string]*shimHost `json:"hosts"`
	PendingChanges int                  `json:"pending_changes"`
	Activations    int                  `json:"activations"`
	Discoveries    map[string]string    `json:"discoveries"` // host -> last mode
}

type shimHost struct {
	IPAddress string `json:"ipaddress"`
	CreatedAt string `json:"created_at"`
	ETag      string `json:"etag"`
}

// Ensure FileShim implements Requester.
var _ Requester = (*FileShim)(nil)

// NewFileShim creates a shim persisting to filePath. An empty path keeps the
// state in memory only.
func NewFileShim(filePath string, logger *slog.Logger) (*FileShim, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &FileShim{
		filePath: filePath,
		logger:   logger.With("component", "checkmk-shim"),
		now:      time.Now,
		state: shimState{
			Hosts:       make(map[string]*shimHost),
			Discoveries: make(map[string]string),
		},
	}
	if filePath == "" {
		return f, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("reading shim file: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.state); err != nil {
		return nil, fmt.Errorf("parsing shim file: %w", err)
	}
	if f.state.Hosts == nil {
		f.state.Hosts = make(map[string]*shimHost)
	}
	if f.state.Discoveries == nil {
		f.state.Discoveries = make(map[string]string)
	}
	return f, nil
}

// Activations returns how many times changes were activated.
func (f *FileShim) Activations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Activations
}

// Get serves host objects, the host collection, discovery status and views.
func (f *FileShim) Get(ctx context.Context, rawURL string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, path, err := splitURL(rawURL)
	if err != nil {
		return nil, err
	}

	switch {
	case strings.HasSuffix(path, "/view.py"):
		return f.view(u.Query())
	case path == "/api/1.0/domain-types/host_config/collections/all":
		return f.collection()
	case strings.HasPrefix(path, "/api/1.0/objects/host_config/"):
		name := strings.TrimPrefix(path, "/api/1.0/objects/host_config/")
		h, ok := f.state.Hosts[name]
		if !ok {
			return f.fail(http.MethodGet, rawURL, http.StatusNotFound, "host not found")
		}
		body, _ := json.Marshal(f.hostObject(name, h))
		return &Response{StatusCode: http.StatusOK, Body: body, ETag: h.ETag}, nil
	case strings.HasPrefix(path, "/api/1.0/objects/service_discovery_run/"):
		host := strings.TrimSuffix(strings.TrimPrefix(path, "/api/1.0/objects/service_discovery_run/"),
			"/actions/wait-for-completion/invoke")
		if _, ok := f.state.Discoveries[host]; !ok {
			return f.fail(http.MethodGet, rawURL, http.StatusNotFound, "no discovery run")
		}
		return &Response{StatusCode: http.StatusOK, Body: []byte(`{}`)}, nil
	}
	return f.fail(http.MethodGet, rawURL, http.StatusNotFound, "unknown endpoint")
}

// Post handles host creation, activation and discovery start.
func (f *FileShim) Post(ctx context.Context, rawURL string, payload any) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, path, err := splitURL(rawURL)
	if err != nil {
		return nil, err
	}

	switch path {
	case "/api/1.0/domain-types/host_config/collections/all":
		var p CreateHostPayload
		if err := remarshal(payload, &p); err != nil || p.HostName == "" {
			return f.fail(http.MethodPost, rawURL, http.StatusBadRequest, "invalid host payload")
		}
		if _, ok := f.state.Hosts[p.HostName]; ok {
			return f.fail(http.MethodPost, rawURL, http.StatusBadRequest, "host already exists")
		}
		h := &shimHost{
			IPAddress: p.Attributes.IPAddress,
			CreatedAt: f.now().UTC().Format(time.RFC3339),
		}
		h.ETag = etagFor(p.HostName, h)
		f.state.Hosts[p.HostName] = h
		f.state.PendingChanges++
		f.logger.Info("host created", "host", p.HostName, "ip", h.IPAddress)
		return f.commit(http.StatusOK, f.hostObject(p.HostName, h))

	case "/api/1.0/domain-types/activation_run/actions/activate-changes/invoke":
		var p ActivatePayload
		if err := remarshal(payload, &p); err != nil || len(p.Sites) == 0 {
			return f.fail(http.MethodPost, rawURL, http.StatusBadRequest, "invalid activation payload")
		}
		f.state.PendingChanges = 0
		f.state.Activations++
		f.logger.Info("changes activated", "sites", p.Sites)
		return f.commit(http.StatusOK, map[string]any{"id": fmt.Sprintf("activation-%d", f.state.Activations)})

	case "/api/1.0/domain-types/service_discovery_run/actions/start/invoke":
		var p DiscoveryPayload
		if err := remarshal(payload, &p); err != nil {
			return f.fail(http.MethodPost, rawURL, http.StatusBadRequest, "invalid discovery payload")
		}
		if _, ok := f.state.Hosts[p.HostName]; !ok {
			return f.fail(http.MethodPost, rawURL, http.StatusNotFound, "host not found")
		}
		f.state.Discoveries[p.HostName] = p.Mode
		if p.Mode == DiscoveryModeFixAll {
			f.state.PendingChanges++
		}
		f.logger.Info("service discovery started", "host", p.HostName, "mode", p.Mode)
		return f.commit(http.StatusOK, map[string]any{"id": p.HostName})
	}
	return f.fail(http.MethodPost, rawURL, http.StatusNotFound, "unknown endpoint")
}

// Put updates the address of a host if etag matches.
func (f *FileShim) Put(ctx context.Context, rawURL string, payload any, etag string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, h, resp, err := f.lookupForWrite(http.MethodPut, rawURL, etag)
	if h == nil {
		return resp, err
	}

	var p UpdateHostPayload
	if err := remarshal(payload, &p); err != nil {
		return f.fail(http.MethodPut, rawURL, http.StatusBadRequest, "invalid host payload")
	}
	h.IPAddress = p.Attributes.IPAddress
	h.ETag = etagFor(name, h)
	f.state.PendingChanges++
	f.logger.Info("host updated", "host", name, "ip", h.IPAddress)
	return f.commit(http.StatusOK, f.hostObject(name, h))
}

// Delete removes a host if etag matches.
func (f *FileShim) Delete(ctx context.Context, rawURL, etag string) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name, h, resp, err := f.lookupForWrite(http.MethodDelete, rawURL, etag)
	if h == nil {
		return resp, err
	}

	delete(f.state.Hosts, name)
	delete(f.state.Discoveries, name)
	f.state.PendingChanges++
	f.logger.Info("host deleted", "host", name)
	return f.commit(http.StatusNoContent, nil)
}

func (f *FileShim) lookupForWrite(method, rawURL, etag string) (string, *shimHost, *Response, error) {
	_, path, err := splitURL(rawURL)
	if err != nil {
		return "", nil, nil, err
	}
	name, ok := strings.CutPrefix(path, "/api/1.0/objects/host_config/")
	if !ok {
		resp, err := f.fail(method, rawURL, http.StatusNotFound, "unknown endpoint")
		return "", nil, resp, err
	}
	h, ok := f.state.Hosts[name]
	if !ok {
		resp, err := f.fail(method, rawURL, http.StatusNotFound, "host not found")
		return "", nil, resp, err
	}
	if etag != "*" && etag != h.ETag {
		resp, err := f.fail(method, rawURL, http.StatusPreconditionFailed,
			fmt.Sprintf("etag mismatch: expected %s, got %s", h.ETag, etag))
		return "", nil, resp, err
	}
	return name, h, nil, nil
}

func (f *FileShim) collection() (*Response, error) {
	names := make([]string, 0, len(f.state.Hosts))
	for name := range f.state.Hosts {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make([]map[string]any, 0, len(names))
	for _, name := range names {
		values = append(values, f.hostObject(name, f.state.Hosts[name]))
	}
	body, _ := json.Marshal(map[string]any{"value": values})
	return &Response{StatusCode: http.StatusOK, Body: body}, nil
}

func (f *FileShim) view(q url.Values) (*Response, error) {
	var rows [][]string
	switch q.Get("view_name") {
	case ViewAllHosts:
		rows = append(rows, []string{"host_state", "host", "num_services_ok", "num_services_warn", "num_services_crit"})
		names := make([]string, 0, len(f.state.Hosts))
		for name := range f.state.Hosts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			rows = append(rows, []string{"UP", name, "0", "0", "0"})
		}
	case ViewHostOK, ViewHostWarn, ViewHostCrit:
		rows = append(rows, []string{"service_state", "service_description", "svc_plugin_output"})
	case ViewNotifications:
		rows = append(rows, []string{"log_time", "log_type", "log_state", "log_plugin_output"})
	default:
		return nil, &StatusError{Method: http.MethodGet, URL: "view.py", StatusCode: http.StatusNotFound, Body: "unknown view"}
	}
	body, _ := json.Marshal(rows)
	return &Response{StatusCode: http.StatusOK, Body: body}, nil
}

func (f *FileShim) hostObject(name string, h *shimHost) map[string]any {
	return map[string]any{
		"domainType": "host_config",
		"id":         name,
		"title":      name,
		"extensions": map[string]any{
			"folder": "/",
			"attributes": map[string]any{
				"ipaddress": h.IPAddress,
				"meta_data": map[string]any{"created_at": h.CreatedAt},
			},
		},
	}
}

// commit persists the state and builds a successful response.
func (f *FileShim) commit(status int, body any) (*Response, error) {
	if f.filePath != "" {
		data, err := json.MarshalIndent(f.state, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling shim state: %w", err)
		}
		if err := os.WriteFile(f.filePath, data, 0644); err != nil {
			return nil, fmt.Errorf("writing shim file: %w", err)
		}
	}

	resp := &Response{StatusCode: status}
	if body != nil {
		resp.Body, _ = json.Marshal(body)
	}
	return resp, nil
}

func (f *FileShim) fail(method, rawURL string, status int, msg string) (*Response, error) {
	f.logger.Debug("request rejected", "method", method, "url", rawURL, "status", status, "reason", msg)
	return &Response{StatusCode: status, Body: []byte(msg)},
		&StatusError{Method: method, URL: rawURL, StatusCode: status, Body: msg}
}

func splitURL(rawURL string) (*url.URL, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("parsing url: %w", err)
	}
	path, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		return nil, "", fmt.Errorf("parsing url: %w", err)
	}
	if i := strings.Index(path, "/api/1.0/"); i >= 0 {
		path = path[i:]
	}
	return u, path, nil
}

func remarshal(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func etagFor(name string, h *shimHost) string {
	sum := sha256.Sum256([]byte(name + "|" + h.IPAddress + "|" + time.Now().String()))
	return `"` + hex.EncodeToString(sum[:8]) + `"`
}
