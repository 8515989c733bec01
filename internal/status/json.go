package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string          `json:"event,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	StartTime      string          `json:"start_time"`
	Timestamp      string          `json:"timestamp"`
	AHRS           AHRSJSON        `json:"ahrs"`
	GPS            GPSJSON         `json:"gps"`
	Power          PowerJSON       `json:"power"`
	Log            LogJSON         `json:"log"`
	Captain        CaptainJSON     `json:"captain"`
	Transitions    int             `json:"transitions"`
	LastTransition *TransitionJSON `json:"last_transition,omitempty"`
	MQTT           MQTTStatus      `json:"mqtt"`
	Network        *NetworkJSON    `json:"network,omitempty"`
	Config         ConfigJSON      `json:"config"`
}

// AHRSJSON reports attitude. Heading is omitted unless valid.
type AHRSJSON struct {
	State   string   `json:"state"`
	Heading *float64 `json:"heading,omitempty"`
	Roll    float64  `json:"roll"`
	Pitch   float64  `json:"pitch"`
}

// GPSJSON reports position. Lat and Lng are omitted unless valid.
type GPSJSON struct {
	State      string   `json:"state"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	Satellites uint32   `json:"satellites"`
	FixAgeMs   uint32   `json:"fix_age_ms"`
}

// PowerJSON reports the battery bus. Readings are omitted before the first sample.
type PowerJSON struct {
	State     string   `json:"state"`
	Volts     *float64 `json:"volts,omitempty"`
	Milliamps *float64 `json:"milliamps,omitempty"`
	Watts     *float64 `json:"watts,omitempty"`
}

// LogJSON reports the SD log.
type LogJSON struct {
	State      string `json:"state"`
	Epoch      uint16 `json:"epoch"`
	File       string `json:"file"`
	FreeKb     uint64 `json:"free_kb"`
	CardBlocks uint64 `json:"card_blocks"`
	Queued     int    `json:"queued"`
}

// CaptainJSON reports the companion link.
type CaptainJSON struct {
	State    string `json:"state"`
	LastLine string `json:"last_line,omitempty"`
	Lines    int    `json:"lines"`
}

// TransitionJSON is the latest committed state change.
type TransitionJSON struct {
	Machine   string `json:"machine"`
	From      string `json:"from"`
	To        string `json:"to"`
	InStateMs int64  `json:"in_state_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs      int64  `json:"tick_ms"`
	ReportMs    int64  `json:"report_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	LogDir      string `json:"log_dir"`
}

func stateOrUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func ptr(v float64) *float64 {
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		AHRS: AHRSJSON{
			State: stateOrUnknown(snap.AHRS.State),
			Roll:  snap.AHRS.Roll,
			Pitch: snap.AHRS.Pitch,
		},
		GPS: GPSJSON{
			State:      stateOrUnknown(snap.GPS.State),
			Satellites: snap.GPS.Satellites,
			FixAgeMs:   snap.GPS.FixAgeMs,
		},
		Power: PowerJSON{State: stateOrUnknown(snap.Power.State)},
		Log: LogJSON{
			State:      stateOrUnknown(snap.Log.State),
			Epoch:      snap.Log.Epoch,
			File:       snap.Log.File,
			FreeKb:     snap.Log.FreeKb,
			CardBlocks: snap.Log.CardBlocks,
			Queued:     snap.Log.Queued,
		},
		Captain: CaptainJSON{
			State:    stateOrUnknown(snap.Captain.State),
			LastLine: snap.Captain.LastLine,
			Lines:    snap.Captain.Lines,
		},
		Transitions: snap.Transitions,
		MQTT:        MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			TickMs:      snap.Config.TickMs,
			ReportMs:    snap.Config.ReportMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			LogDir:      snap.Config.LogDir,
		},
	}

	if snap.AHRS.HeadingValid {
		inner.AHRS.Heading = ptr(snap.AHRS.Heading)
	}
	if snap.GPS.PositionValid {
		inner.GPS.Lat = ptr(snap.GPS.Lat)
		inner.GPS.Lng = ptr(snap.GPS.Lng)
	}
	if snap.Power.Sampled {
		inner.Power.Volts = ptr(snap.Power.Volts)
		inner.Power.Milliamps = ptr(snap.Power.Milliamps)
		inner.Power.Watts = ptr(snap.Power.Watts)
	}
	if tr := snap.LastTransition; tr != nil {
		inner.LastTransition = &TransitionJSON{
			Machine:   tr.Machine,
			From:      tr.From,
			To:        tr.To,
			InStateMs: tr.InState.Milliseconds(),
		}
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
