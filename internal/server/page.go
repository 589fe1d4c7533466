package server

import (
	"html/template"
	"time"
)

var pageFuncs = template.FuncMap{
	"since": func(t time.Time) string { return t.Local().Format("2006-01-02 15:04:05") },
	"ms":    func(d time.Duration) int64 { return d.Milliseconds() },
}

var pageTemplate = template.Must(template.New("page").Funcs(pageFuncs).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Rails preview</title>
<style>
body{font-family:system-ui,sans-serif;margin:2rem;max-width:70rem}
form{display:inline-block;margin:0 1rem 1rem 0}
.error{color:#b00020}
.notice{color:#1b5e20}
.preview-frame{width:100%;height:36rem;border:1px solid #ccc}
table{border-collapse:collapse}
td,th{padding:.2rem .6rem;border-bottom:1px solid #eee;text-align:left}
</style>
</head>
<body>
<h1>Rails preview</h1>

<section id="repositories">
<form method="post" action="{{.Base}}/clone">
  <label>Repository URL <input type="text" name="repo_url" size="50" placeholder="https://github.com/user/app.git"></label>
  <button type="submit">Clone</button>
</form>
<form method="post" action="{{.Base}}/start">
  <label>Repository
  <select name="repo">
    {{- range .Repos}}
    <option value="{{.}}"{{if eq . $.Selected}} selected{{end}}>{{.}}</option>
    {{- end}}
  </select></label>
  <button type="submit"{{if not .Repos}} disabled{{end}}>Start</button>
</form>
<form method="post" action="{{.Base}}/stop">
  <button type="submit">Stop</button>
</form>
<p id="status">{{if .Status.Running}}Server running{{with .Status.Repo}} for {{.}}{{end}}{{with .Status.PID}} (pid {{.}}){{end}} at {{.Status.URL}}{{else}}No server running{{end}}</p>
</section>

<section id="result">
{{- with .Error}}<p class="error">{{.}}</p>{{end}}
{{- with .Clone}}
<p class="{{if .Error}}error{{else}}notice{{end}}">{{.Message}}{{with .Repo}}: {{.}}{{end}}</p>
{{- with .Error}}<pre class="error">{{.}}</pre>{{end}}
{{- end}}
{{- with .Stop}}
<p class="{{if .Error}}error{{else}}notice{{end}}">{{.Message}}{{with .PIDs}} (pid {{range $i, $p := .}}{{if $i}}, {{end}}{{$p}}{{end}}){{end}}</p>
{{- with .Error}}<pre class="error">{{.}}</pre>{{end}}
{{- end}}
{{- with .Launch}}
<p class="{{if .Error}}error{{else}}notice{{end}}">{{.Message}}{{with .Kind}} ({{.}}){{end}} in {{ms .Duration}} ms</p>
{{- with .Error}}<pre class="error">{{.}}</pre>{{end}}
{{- if and .URL (ne .Status 200)}}<p>Home page answered with status {{.Status}}.</p>{{end}}
{{- with .SkippedStylesheets}}<p>Skipped stylesheets: {{range $i, $s := .}}{{if $i}}, {{end}}{{$s}}{{end}}</p>{{end}}
{{- end}}
{{- with .Preview}}
<div class="preview">{{.}}</div>
{{- end}}
</section>

{{- with .History}}
<section id="history">
<h2>Recent activity</h2>
<table>
<tr><th>Time</th><th>Event</th><th>Repository</th><th>Result</th><th>Error</th></tr>
{{- range .}}
<tr><td>{{since .OccurredAt}}</td><td>{{.Type}}</td><td>{{.Record.Repo}}</td><td>{{.Record.Message}}{{with .Record.Kind}} ({{.}}){{end}}</td><td>{{.Record.Error}}</td></tr>
{{- end}}
</table>
</section>
{{- end}}
</body>
</html>
`))
