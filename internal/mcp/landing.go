package mcp

import "net/http"

const landingHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Knowledge RAG</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #0f172a; margin: 0; }
  main { max-width: 640px; margin: 4rem auto; padding: 0 1.5rem; }
  h1 { font-size: 1.6rem; margin-bottom: 0.25rem; }
  p.lead { color: #475569; margin-top: 0; }
  h2 { font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.08em; color: #64748b; margin-top: 2rem; }
  code, a.endpoint { font-family: Menlo, "Fira Code", monospace; font-size: 0.9rem; }
  a { color: #2563eb; text-decoration: none; }
  li { margin: 0.35rem 0; }
</style>
</head>
<body>
<main>
  <h1>Knowledge RAG</h1>
  <p class="lead">Semantic search over your own documents via the Model Context Protocol.</p>

  <h2>Endpoints</h2>
  <ul>
    <li><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</li>
    <li><a href="/health" class="endpoint">/health</a> Health check</li>
    <li><a href="/metrics" class="endpoint">/metrics</a> Prometheus metrics</li>
  </ul>

  <h2>Tools</h2>
  <ul>
    <li><code>search_knowledge</code></li>
    <li><code>ingest_document</code></li>
    <li><code>list_documents</code></li>
    <li><code>delete_document</code></li>
    <li><code>knowledge_stats</code></li>
    <li><code>list_categories</code></li>
    <li><code>processing_queue</code></li>
  </ul>
</main>
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
