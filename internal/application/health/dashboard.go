package health

import (
	"fmt"
	"html"
	"strings"
)

// RenderDashboardHTML returns the status page served at GET /.
func RenderDashboardHTML(h CollectResult) string {
	headline := "All Systems Operational"
	if h.Status != "ok" {
		headline = "System Issues Detected"
	}
	lastReq := "-"
	if m, ok := h.Traffic.LastRequest.(map[string]interface{}); ok {
		lastReq = fmt.Sprintf("%v %v", m["method"], m["path"])
	}

	var deps strings.Builder
	for _, name := range []string{"database", "redis"} {
		d := h.Dependencies[name]
		class := "ok"
		if d.Status != "connected" {
			class = "err"
		}
		ping := "?"
		if p, ok := d.PingMs.(*int64); ok && p != nil {
			ping = fmt.Sprint(*p)
		}
		fmt.Fprintf(&deps, `<div class="row"><span>%s</span><span class="pill %s">%s · %s ms</span></div>`,
			name, class, html.EscapeString(d.Status), ping)
	}

	return `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>GreenCoin · API Status</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <meta http-equiv="refresh" content="30">
  <style>
    :root { --green: #0f766e; --dark: #134e4a; --bg: #f0fdf4; --muted: #64748b; }
    body { background: var(--bg); color: var(--dark); font-family: sans-serif; margin: 0; display: flex; justify-content: center; }
    .container { width: 100%; max-width: 960px; padding: 40px 20px; }
    h1 { font-size: 44px; font-weight: 900; letter-spacing: -2px; margin: 0 0 24px; }
    .grid { display: grid; grid-template-columns: repeat(3, 1fr); gap: 16px; }
    .card { background: white; border-radius: 20px; padding: 28px; box-shadow: 0 20px 60px -20px rgba(15,118,110,0.2); }
    .label { text-transform: uppercase; font-size: 11px; font-weight: 900; letter-spacing: 2px; color: #94a3b8; margin-bottom: 16px; }
    .big { font-size: 36px; font-weight: 900; margin-bottom: 8px; }
    .row { display: flex; justify-content: space-between; padding: 6px 0; font-size: 14px; font-weight: 700; }
    .pill { padding: 3px 10px; border-radius: 8px; font-size: 11px; }
    .ok { background: rgba(15,118,110,0.1); color: var(--green); }
    .err { background: rgba(239,68,68,0.1); color: #ef4444; }
    footer { margin-top: 24px; font-family: monospace; color: var(--muted); display: flex; justify-content: space-between; }
    @media (max-width: 800px) { .grid { grid-template-columns: 1fr; } }
  </style>
</head>
<body>
  <div class="container">
    <h1>` + headline + `</h1>
    <div class="grid">
      <div class="card">
        <div class="label">Traffic</div>
        <div class="big">` + fmt.Sprint(h.Traffic.TotalRequests) + `</div>
        <div class="row"><span>Successful</span><span>` + fmt.Sprint(h.Traffic.SuccessCount) + `</span></div>
        <div class="row"><span>Failed</span><span>` + fmt.Sprint(h.Traffic.FailedCount) + `</span></div>
        <div class="row"><span>Success Rate</span><span>` + h.Traffic.SuccessRate + `%</span></div>
        <div class="row"><span>Avg Latency</span><span>` + fmt.Sprint(h.Traffic.AvgResponseTime) + `ms</span></div>
      </div>
      <div class="card">
        <div class="label">Settlement</div>
        <div class="big">` + fmt.Sprint(h.Settlement.Pending+h.Settlement.Unknown) + `</div>
        <div class="row"><span>Pending intents</span><span>` + fmt.Sprint(h.Settlement.Pending) + `</span></div>
        <div class="row"><span>Unknown outcome</span><span>` + fmt.Sprint(h.Settlement.Unknown) + `</span></div>
        <div class="row"><span>Uptime</span><span>` + fmt.Sprint(h.Runtime.UptimeSeconds) + `s</span></div>
        <div class="row"><span>Goroutines</span><span>` + fmt.Sprint(h.Runtime.Goroutines) + `</span></div>
      </div>
      <div class="card">
        <div class="label">Connectivity</div>
        ` + deps.String() + `
        <div class="row"><span>Platform</span><span>` + h.Runtime.Platform + `</span></div>
      </div>
    </div>
    <footer>
      <span>LAST INBOUND ` + html.EscapeString(lastReq) + `</span>
      <span><a href="/health/json">/health/json</a> · <a href="/health/errors">/health/errors</a> · <a href="/metrics">/metrics</a></span>
    </footer>
  </div>
</body>
</html>`
}
