package stanza

// PayloadType describes one RTP payload type as advertised in a Jingle
// description or a COLIBRI channel. The codec set is a static, hard-coded
// description rather than a negotiated one: reordering is not observable
// to compliant clients, so these are plain value types rather than
// anything fancier.
type PayloadType struct {
	ID            int
	Name          string
	ClockRate     int
	Channels      int              // 0 means "not applicable" (video)
	Parameters    map[string]string
	FeedbackTypes []string // rtcp-fb types, e.g. "nack", "nack pli", "ccm fir"
}

// RTPHeaderExtension describes one RTP header extension offered alongside
// a medium's payload types.
type RTPHeaderExtension struct {
	ID  int
	URI string
}

// CodecConfig is the fixed audio/video/rtx description table a focus
// instance ships. One is built once from internal/config and reused by
// every builder call — the builders themselves stay pure and stateless.
type CodecConfig struct {
	Audio       []PayloadType
	Video       []PayloadType
	AudioHdrExt []RTPHeaderExtension
	VideoHdrExt []RTPHeaderExtension
	EnableRTX   bool
}

// DefaultCodecConfig is the fixed opus/ISAC/G722/PCMU/PCMA + VP8(+rtx)
// codec table.
func DefaultCodecConfig(enableRTX bool) CodecConfig {
	cfg := CodecConfig{
		Audio: []PayloadType{
			{ID: 111, Name: "opus", ClockRate: 48000, Channels: 2, Parameters: map[string]string{"minptime": "10", "useinbandfec": "1"}},
			{ID: 103, Name: "ISAC", ClockRate: 16000},
			{ID: 9, Name: "G722", ClockRate: 8000},
			{ID: 0, Name: "PCMU", ClockRate: 8000},
			{ID: 8, Name: "PCMA", ClockRate: 8000},
		},
		Video: []PayloadType{
			{
				ID: 100, Name: "VP8", ClockRate: 90000,
				FeedbackTypes: []string{"ccm fir", "nack", "nack pli", "goog-remb"},
			},
		},
		AudioHdrExt: []RTPHeaderExtension{
			{ID: 1, URI: "urn:ietf:params:rtp-hdrext:ssrc-audio-level"},
		},
		VideoHdrExt: []RTPHeaderExtension{
			{ID: 2, URI: "urn:ietf:params:rtp-hdrext:toffset"},
			{ID: 3, URI: "http://www.webrtc.org/experiments/rtp-hdrext/abs-send-time"},
		},
		EnableRTX: enableRTX,
	}
	if enableRTX {
		cfg.Video = append(cfg.Video, PayloadType{
			ID: 96, Name: "rtx", ClockRate: 90000,
			Parameters: map[string]string{"apt": "100"},
		})
	}
	return cfg
}
