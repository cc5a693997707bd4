package monitor

import (
	"encoding/xml"
	"fmt"
)

// Subset of the nginx-rtmp-module /stat XML we care about.
type rtmpStat struct {
	Servers []rtmpServer `xml:"server"`
}

type rtmpServer struct {
	Applications []rtmpApplication `xml:"application"`
}

type rtmpApplication struct {
	Name string   `xml:"name"`
	Live rtmpLive `xml:"live"`
}

type rtmpLive struct {
	Streams []rtmpStream `xml:"stream"`
}

type rtmpStream struct {
	Name       string    `xml:"name"`
	BWIn       int64     `xml:"bw_in"` // bits per second
	BytesIn    int64     `xml:"bytes_in"`
	Publishing *struct{} `xml:"publishing"` // present iff a publisher is connected
}

// nginxRTMPPresent reports whether the named stream under the given
// application currently has an active publisher with nonzero inbound
// bandwidth. A stream absent from the page means nobody is publishing.
func nginxRTMPPresent(body []byte, app, stream string) (bool, error) {
	var st rtmpStat
	if err := xml.Unmarshal(body, &st); err != nil {
		return false, fmt.Errorf("parse nginx-rtmp stat: %w", err)
	}
	for _, srv := range st.Servers {
		for _, a := range srv.Applications {
			if a.Name != app {
				continue
			}
			for _, s := range a.Live.Streams {
				if s.Name != stream {
					continue
				}
				return s.Publishing != nil && s.BWIn > 0, nil
			}
		}
	}
	return false, nil
}
