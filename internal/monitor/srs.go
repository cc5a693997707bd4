package monitor

import (
	"encoding/json"
	"fmt"
)

// Subset of the SRS /api/v1/streams response we care about.
type srsStreamsResp struct {
	Code    int         `json:"code"`
	Streams []srsStream `json:"streams"`
}

type srsStream struct {
	Name    string     `json:"name"`
	App     string     `json:"app"`
	Publish srsPublish `json:"publish"`
	Kbps    srsKbps    `json:"kbps"`
}

type srsPublish struct {
	Active bool `json:"active"`
}

type srsKbps struct {
	Recv30s int64 `json:"recv_30s"`
	Send30s int64 `json:"send_30s"`
}

// srsPresent reports whether the named stream has an active publisher with
// nonzero inbound throughput. recv_30s is a trailing average, so the active
// flag gates it: a freshly disconnected publisher still shows residual kbps.
// app is matched only when non-empty.
func srsPresent(body []byte, app, stream string) (bool, error) {
	var resp srsStreamsResp
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, fmt.Errorf("parse srs streams: %w", err)
	}
	if resp.Code != 0 {
		return false, fmt.Errorf("srs api code %d", resp.Code)
	}
	for _, s := range resp.Streams {
		if s.Name != stream {
			continue
		}
		if app != "" && s.App != app {
			continue
		}
		return s.Publish.Active && s.Kbps.Recv30s > 0, nil
	}
	return false, nil
}
