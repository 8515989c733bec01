package web

import (
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/sweeney/roboat-helm/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"stateOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	// stateClass colours a state cell: errors red, steady states green.
	"stateClass": func(s string) string {
		switch {
		case s == "":
			return "unknown"
		case strings.HasPrefix(s, "ERROR"):
			return "error"
		case s == "RUNNING" || s == "READY" || s == "ONDECK" || s == "BATTERY" || s == "CHARGING" || s == "MAINTAINING":
			return "ok"
		default:
			return "busy"
		}
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
{{if gt .Config.ReportMs 0}}<meta http-equiv="refresh" content="{{.Refresh}}">{{end}}
<title>Roboat Helm</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.ok { color: green; font-weight: bold; }
.busy { color: #888; }
.error { color: red; font-weight: bold; }
.unknown { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Roboat Helm</h1>

<h2>Subsystems</h2>
<table>
<tr><th>AHRS</th><td id="ahrs-state" class="{{stateClass .AHRS.State}}">{{stateOrUnknown .AHRS.State}}</td></tr>
<tr><th>GPS</th><td id="gps-state" class="{{stateClass .GPS.State}}">{{stateOrUnknown .GPS.State}}</td></tr>
<tr><th>Power</th><td id="power-state" class="{{stateClass .Power.State}}">{{stateOrUnknown .Power.State}}</td></tr>
<tr><th>Log</th><td id="log-state" class="{{stateClass .Log.State}}">{{stateOrUnknown .Log.State}}</td></tr>
<tr><th>Captain</th><td id="captain-state" class="{{stateClass .Captain.State}}">{{stateOrUnknown .Captain.State}}</td></tr>
</table>

<h2>Attitude</h2>
<table>
<tr><th>Heading</th><td id="heading">{{if .AHRS.HeadingValid}}{{printf "%.2f" .AHRS.Heading}}&deg;{{else}}-{{end}}</td></tr>
<tr><th>Roll</th><td>{{printf "%.1f" .AHRS.Roll}}&deg;</td></tr>
<tr><th>Pitch</th><td>{{printf "%.1f" .AHRS.Pitch}}&deg;</td></tr>
</table>

<h2>Position</h2>
<table>
<tr><th>Fix</th><td id="position">{{if .GPS.PositionValid}}{{printf "%.6f" .GPS.Lat}}, {{printf "%.6f" .GPS.Lng}}{{else}}none{{end}}</td></tr>
<tr><th>Satellites</th><td>{{.GPS.Satellites}}</td></tr>
{{if .GPS.PositionValid}}<tr><th>Fix age</th><td>{{.GPS.FixAgeMs}}ms</td></tr>{{end}}
</table>

<h2>Battery</h2>
<table>
{{if .Power.Sampled}}<tr><th>Bus</th><td id="volts">{{printf "%.2f" .Power.Volts}}V</td></tr>
<tr><th>Current</th><td>{{printf "%.1f" .Power.Milliamps}}mA</td></tr>
<tr><th>Power</th><td>{{printf "%.3f" .Power.Watts}}W</td></tr>{{else}}<tr><th>Bus</th><td id="volts">not sampled</td></tr>{{end}}
</table>

<h2>Log</h2>
<table>
<tr><th>File</th><td>{{if .Log.File}}{{.Log.File}}{{else}}-{{end}}</td></tr>
<tr><th>Free</th><td>{{.Log.FreeKb}}kB</td></tr>
<tr><th>Queued</th><td>{{.Log.Queued}} lines</td></tr>
</table>

<h2>Captain</h2>
<table>
<tr><th>Lines</th><td>{{.Captain.Lines}}</td></tr>
<tr><th>Last</th><td id="captain-line">{{if .Captain.LastLine}}{{.Captain.LastLine}}{{else}}-{{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Transitions</th><td>{{.Transitions}}{{with .LastTransition}} (last {{.Machine}} {{.From}} &rarr; {{.To}}){{end}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Report</th><td>{{.Config.ReportMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> | <a href="/health">health</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	refresh := snap.Config.ReportMs / 1000
	if refresh < 1 {
		refresh = 1
	}
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Refresh int64
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Refresh:  refresh,
	}
	indexTmpl.Execute(w, data)
}
