// Package gateway serves the UI over a loopback HTTP server.
//
// The renderer's static files are served at "/". The UI then opens a
// websocket at "/ws?token=<session token>" and speaks JSON frames:
//
//	UI -> host   {"channel":"to-worker","id":1,"payload":{...}}
//	host -> UI   {"channel":"select-directory","id":1,"payload":{"cancelled":true}}
//	host -> UI   {"channel":"worker-data","payload":{...}}
//
// Every inbound frame goes through the capability boundary; the gateway
// itself never decides what a channel does. Frames that do not parse are
// dropped. Outbound channels are fanned out to every connected client
// through a bounded per-client queue, and a client that cannot keep up is
// disconnected so it never stalls the worker relay.
//
// The session token is generated per host run and the websocket upgrade
// also checks the Origin header, so a page in some other browser tab cannot
// drive the worker.
package gateway
