package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>speechqa MCP Server</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; background: #0f172a; color: #e2e8f0; display: flex; justify-content: center; padding-top: 10vh; }
  .card { max-width: 560px; width: 90%; background: #1e293b; border-radius: 12px; padding: 2rem; }
  h1 { font-size: 1.5rem; margin: 0 0 0.5rem; }
  .subtitle { color: #94a3b8; }
  a { color: #38bdf8; text-decoration: none; }
  .endpoint { font-family: Menlo, monospace; color: #a5b4fc; }
</style>
</head>
<body>
<div class="card">
  <h1>speechqa</h1>
  <p class="subtitle">Question answering over a single indexed document via the Model Context Protocol.</p>
  <p><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</p>
  <p><a href="/health" class="endpoint">/health</a> Health check</p>
  <p>Tools: <code>search_context</code>, <code>ask</code>, <code>get_index_status</code></p>
</div>
</body>
</html>`

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(landingHTML))
	}
}
