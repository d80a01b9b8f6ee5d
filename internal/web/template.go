package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/status"
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
	// value renders a reading; failed reads show as "n/a".
	"value": func(v float64) string {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "n/a"
		}
		return fmt.Sprintf("%.2f", v)
	},
	"onOff": func(on bool) string {
		if on {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>Greenhouse Controller</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Greenhouse Controller</h1>

<h2>Readings</h2>
{{if .HaveReading}}<table>
<tr><th>Temperature</th><td>{{value .Reading.TemperatureC}} &deg;C</td></tr>
<tr><th>Humidity</th><td>{{value .Reading.HumidityPct}} %</td></tr>
<tr><th>Moisture</th><td>{{value .Reading.MoisturePct}} %</td></tr>
<tr><th>CO2</th><td>{{value .Reading.GasConcentration}}</td></tr>
<tr><th>Last cycle</th><td>{{.LastCycle.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
</table>{{else}}<p class="warn">No reading yet</p>{{end}}
{{if .LastError}}<p class="warn">Last sample failed: {{.LastError}}</p>{{end}}

<h2>Outputs</h2>
<table>
<tr><th>Fan</th><td class="{{if .Outputs.FanOn}}on{{else}}off{{end}}">{{onOff .Outputs.FanOn}}</td></tr>
{{if .Config.Thresholds.IndicatorEnabled}}<tr><th>Indicator</th><td class="{{if .Outputs.IndicatorOn}}on{{else}}off{{end}}">{{onOff .Outputs.IndicatorOn}}</td></tr>{{end}}
<tr><th>Valve</th><td class="{{if .Outputs.ValveOpen}}on{{else}}off{{end}}">{{.Valve}}{{if .Valve.IsOpen}} ({{.ValveOpenFor}}){{end}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
{{if .Config.Broker}}<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{else}}<tr><th>MQTT</th><td>disabled</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Cycles</th><td>{{.Counts.Cycles}}</td></tr>
<tr><th>Failed samples</th><td>{{.Counts.FailedSamples}}</td></tr>
<tr><th>Valve opens</th><td>{{.Counts.ValveOpens}}</td></tr>
<tr><th>Closed (moisture)</th><td>{{.Counts.ClosedByMoisture}}</td></tr>
<tr><th>Closed (timeout)</th><td>{{.Counts.ClosedByTimeout}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Profile</th><td>{{.Config.Profile}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleMs}}ms</td></tr>
<tr><th>Valve max open</th><td>{{.Config.MaxOpenMs}}ms</td></tr>
<tr><th>Gas threshold</th><td>{{.Config.Thresholds.GasPPM}}</td></tr>
<tr><th>Moisture threshold</th><td>{{.Config.Thresholds.MoisturePct}} %</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Sampler</th><td>{{.Config.Sampler}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">metrics</a>{{if .Config.HistoryEnabled}} &middot; <a href="/history.json">history</a>{{end}}</p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
