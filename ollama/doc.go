// Package ollama is a small client for a local Ollama daemon.
//
// It covers what the chat proxy needs: listing installed and loaded models,
// pulling and deleting models, streaming chat completions as NDJSON, and
// starting the daemon when it is not running.
//
// Usage:
//
//	client := ollama.NewClient(logger, "http://127.0.0.1:11434", 30*time.Second)
//	req, err := ollama.ChatPayload{Model: "llama3.2:1b", Messages: raw}.ChatRequest()
//	if err := client.EnsureModel(ctx, req.Model); err != nil {
//	    return err
//	}
//	body, err := client.ChatStream(ctx, req)
//	defer body.Close()
//	err = ollama.RelayNDJSON(w, body, flush)
package ollama
