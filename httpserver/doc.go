// Package httpserver exposes the sandbox runner over HTTP.
//
// POST /exec (also /api/exec) takes {"lang", "code"} and answers with the
// live, interleaved output of the process as text/plain, terminated by the
// exit marker. Requests rejected before anything runs get a 400 with a
// plain-text reason, or a 503 when no execution slot frees up in time.
//
// The router also serves the language listing, a health probe, the Ollama
// chat proxy under /ollama and, when configured, the MCP endpoint.
//
// Usage:
//
//	srv := httpserver.New(logger, runner,
//	    httpserver.WithAddr("127.0.0.1:8080"),
//	    httpserver.WithOllama(client),
//	)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//	defer srv.Shutdown(ctx)
package httpserver
