// Package api provides the HTTP surface of the sample centring core.
//
// Routes live under the configured base path (default /mxcube/api/v0.1) and
// keep the wire contract the existing UI expects: hardware commands answer
// with the plain-text body "True" or "False", status reads answer with JSON,
// and the camera feed is a multipart/x-mixed-replace stream of JPEG parts.
// A failed command is logged and counted by error kind but still answers
// "False" with status 200.
//
// Besides the legacy routes the server exposes a WebSocket event feed of
// hardware signals, a WebSocket camera feed, the command journal, /health
// and Prometheus /metrics.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
