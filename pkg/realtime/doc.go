// Package realtime implements the duplex voice-session transport: a JSON
// control/event channel alongside streamed audio.
//
// Two transports are provided. WebRTC carries audio as media tracks and
// events over a data channel, with signaling done by POSTing the local SDP
// offer and reading the answer as plain text. WebSocket carries both audio
// (base64 PCM) and events as JSON messages on one connection. Both satisfy
// the Session interface, so everything above the transport is shared.
//
// Events are consumed through Session.Events, an iterator that yields
// until the session closes or a fatal error occurs:
//
//	session, err := client.ConnectWebRTC(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer session.Close()
//	for event, err := range session.Events() {
//		if err != nil {
//			return err
//		}
//		// dispatch event
//	}
package realtime
