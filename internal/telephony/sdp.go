package telephony

import (
	"errors"
	"fmt"

	"github.com/pion/sdp/v3"
)

// Offered payload types: PCMU, PCMA and RFC 4733 telephone events for DTMF.
var offerFormats = []string{"0", "8", "101"}

var rtpmaps = map[string]string{
	"0":   "PCMU/8000",
	"8":   "PCMA/8000",
	"101": "telephone-event/8000",
}

// buildSDP renders the audio description advertised in INVITEs and 200 OKs.
func buildSDP(addr string, port int, sessionID uint64) ([]byte, error) {
	if addr == "" || port <= 0 {
		return nil, fmt.Errorf("%w: media address", ErrInvalidInput)
	}

	attrs := make([]sdp.Attribute, 0, len(offerFormats)+3)
	for _, f := range offerFormats {
		attrs = append(attrs, sdp.Attribute{Key: "rtpmap", Value: f + " " + rtpmaps[f]})
	}
	attrs = append(attrs,
		sdp.Attribute{Key: "fmtp", Value: "101 0-15"},
		sdp.Attribute{Key: "ptime", Value: "20"},
		sdp.Attribute{Key: "sendrecv"},
	)

	desc := &sdp.SessionDescription{
		Origin: sdp.Origin{
			Username:       "softphone",
			SessionID:      sessionID,
			SessionVersion: sessionID,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: addr,
		},
		SessionName: "softphone",
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: addr},
		},
		TimeDescriptions: []sdp.TimeDescription{
			{Timing: sdp.Timing{StartTime: 0, StopTime: 0}},
		},
		MediaDescriptions: []*sdp.MediaDescription{
			{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: port},
					Protos:  []string{"RTP", "AVP"},
					Formats: offerFormats,
				},
				Attributes: attrs,
			},
		},
	}
	return desc.Marshal()
}

// remoteMedia extracts the first audio endpoint from an SDP body.
func remoteMedia(body []byte) (string, int, error) {
	if len(body) == 0 {
		return "", 0, errors.New("telephony: empty sdp")
	}
	desc := &sdp.SessionDescription{}
	if err := desc.Unmarshal(body); err != nil {
		return "", 0, fmt.Errorf("parse sdp: %w", err)
	}
	for _, m := range desc.MediaDescriptions {
		if m.MediaName.Media != "audio" {
			continue
		}
		var addr string
		switch {
		case m.ConnectionInformation != nil && m.ConnectionInformation.Address != nil:
			addr = m.ConnectionInformation.Address.Address
		case desc.ConnectionInformation != nil && desc.ConnectionInformation.Address != nil:
			addr = desc.ConnectionInformation.Address.Address
		}
		return addr, m.MediaName.Port.Value, nil
	}
	return "", 0, errors.New("telephony: no audio in sdp")
}
