package camera

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// maxSnapshotBytes caps one snapshot body read.
const maxSnapshotBytes = 16 << 20

// SnapshotDriver grabs frames from an IP camera's HTTP snapshot endpoint.
// Devices on the LAN commonly present self-signed certificates, so TLS
// verification is skipped.
type SnapshotDriver struct {
	url      string
	username string
	password string
	client   *http.Client

	mu      sync.Mutex
	claimed bool
}

func NewSnapshotDriver(url, username, password string) *SnapshotDriver {
	return &SnapshotDriver{
		url:      url,
		username: username,
		password: password,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			},
		},
	}
}

func (d *SnapshotDriver) Name() string { return "snapshot:" + d.url }

// Open probes the endpoint once. Network failures mean the device is absent;
// auth rejections and busy statuses map to their own error categories.
func (d *SnapshotDriver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed {
		return &ConflictError{Device: d.url}
	}

	resp, err := d.fetch(ctx)
	if err != nil {
		return &HardwareError{Reason: fmt.Sprintf("snapshot endpoint unreachable: %v", err)}
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxSnapshotBytes))
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PermissionError{Reason: fmt.Sprintf("snapshot endpoint returned %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusLocked:
		return &ConflictError{Device: d.url}
	case resp.StatusCode/100 != 2:
		return &HardwareError{Reason: fmt.Sprintf("snapshot endpoint returned %d", resp.StatusCode)}
	}

	d.claimed = true
	return nil
}

func (d *SnapshotDriver) Grab(ctx context.Context) (RawFrame, error) {
	d.mu.Lock()
	claimed := d.claimed
	d.mu.Unlock()
	if !claimed {
		return RawFrame{}, &CaptureError{Stage: "grab", Err: errNotOpen}
	}

	resp, err := d.fetch(ctx)
	if err != nil {
		return RawFrame{}, &CaptureError{Stage: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RawFrame{}, &CaptureError{Stage: "fetch", Err: fmt.Errorf("snapshot returned %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return RawFrame{}, &CaptureError{Stage: "fetch", Err: err}
	}
	return RawFrame{Encoded: body}, nil
}

func (d *SnapshotDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimed = false
	return nil
}

func (d *SnapshotDriver) fetch(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, err
	}
	if d.username != "" {
		req.SetBasicAuth(d.username, d.password)
	}
	return d.client.Do(req)
}
