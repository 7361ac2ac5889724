/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: templates.go
Description: HTML template for the parse run dashboard.
*/

package reporting

const dashboardTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}} - Akaylee Parser</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            color: #333;
        }
        .container { max-width: 1400px; margin: 0 auto; padding: 20px; }
        .panel {
            background: rgba(255, 255, 255, 0.95);
            border-radius: 15px;
            padding: 25px;
            margin-bottom: 30px;
            box-shadow: 0 8px 32px rgba(0, 0, 0, 0.1);
        }
        .header { text-align: center; }
        .header h1 { color: #4a5568; font-size: 2.5rem; margin-bottom: 10px; }
        .header p { color: #718096; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }
        .stat-card .value { font-size: 2.2rem; font-weight: 700; color: #2d3748; }
        .stat-card .label { color: #718096; font-size: 0.9rem; text-transform: uppercase; letter-spacing: 0.5px; }
        h2 { color: #4a5568; margin-bottom: 15px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid #e2e8f0; vertical-align: top; }
        .ok { color: #2f855a; font-weight: 600; }
        .failed { color: #c53030; font-weight: 600; }
        .attempts { color: #718096; font-size: 0.85rem; }
        pre, code { font-family: 'Fira Code', monospace; font-size: 0.9rem; }
        pre { background: #f7fafc; padding: 15px; border-radius: 10px; overflow-x: auto; }
    </style>
</head>
<body>
<div class="container">
    <div class="panel header">
        <h1>{{.Title}}</h1>
        <p>Generated on {{.GeneratedAt.Format "January 2, 2006 at 3:04 PM"}}</p>
    </div>

    <div class="stats-grid">
        <div class="panel stat-card"><div class="value">{{.Engine.Parses}}</div><div class="label">Parses</div></div>
        <div class="panel stat-card"><div class="value">{{.Engine.Successes}}</div><div class="label">Succeeded</div></div>
        <div class="panel stat-card"><div class="value">{{.Engine.Failures}}</div><div class="label">Failed</div></div>
        <div class="panel stat-card"><div class="value">{{.Engine.Resolutions}}</div><div class="label">Resolutions</div></div>
        {{with .Gateway}}
        <div class="panel stat-card"><div class="value">{{.OracleCalls}}</div><div class="label">Oracle calls</div></div>
        <div class="panel stat-card"><div class="value">{{.CacheHits}}</div><div class="label">Cache hits</div></div>
        {{end}}
    </div>

    <div class="panel">
        <h2>Documents</h2>
        <table>
            <tr><th>Document</th><th>Result</th><th>Grammar</th><th>Confidence</th><th>Duration</th></tr>
            {{range .Documents}}
            <tr>
                <td>{{.Name}}</td>
                <td>
                    {{if .Succeeded}}<span class="ok">{{.Outcome}}</span>{{else}}<span class="failed">{{.Code}}</span>{{end}}
                    {{if .Error}}<div>{{.Error}}</div>{{end}}
                    {{if .Snippet}}<div>near <code>{{.Snippet}}</code></div>{{end}}
                    {{range .Attempts}}
                    <div class="attempts">#{{.Number}} v{{.Version}} {{.Outcome}}{{if .Rule}} <code>{{.Rule}}</code>{{end}}</div>
                    {{end}}
                </td>
                <td>v{{.Version}}</td>
                <td>{{pct .Confidence}}</td>
                <td>{{.Duration}}</td>
            </tr>
            {{end}}
        </table>
    </div>

    <div class="panel">
        <h2>Grammar versions</h2>
        <table>
            <tr><th>Version</th><th>Parent</th><th>Rules</th><th>Change</th><th>Digest</th></tr>
            {{range .Versions}}
            <tr><td>v{{.Version}}</td><td>v{{.Parent}}</td><td>{{.Rules}}</td><td>{{.Note}}</td><td><code>{{printf "%.12s" .Digest}}</code></td></tr>
            {{end}}
        </table>
    </div>

    <div class="panel">
        <h2>Final grammar</h2>
        <pre>{{.Grammar}}</pre>
    </div>
</div>
</body>
</html>
`
