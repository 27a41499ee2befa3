// Package signaling orchestrates the WebSocket signaling phase for the
// WebRTC-carried debug session — SDP/ICE details are internal; callers
// receive a ready-to-use Transport.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/kaelos/gdbrsp/internal/transport"
	"github.com/kaelos/gdbrsp/internal/util"
)

// EstablishAsStub runs the stub-side flow: start a PIN-protected WS server
// on wsAddr, wait for the remote bridge to connect, send the offer, and
// block until the DataChannel opens. The WS server and connection are torn
// down before returning — they exist only for the exchange.
func EstablishAsStub(ctx context.Context, wsAddr string) (*transport.Transport, error) {
	pin := generatePIN(6)
	srv := newServer(pin)
	wsPort, err := srv.start(wsAddr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	util.LogInfo("signaling server listening on port %d (pin %s)", wsPort, pin)
	util.LogInfo("bridge URL: ws://<this-host>:%d/ws?pin=%s", wsPort, pin)

	wsConn, err := srv.waitForPeer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for bridge: %w", err)
	}
	defer wsConn.Close()
	util.LogDebug("bridge connected via WS")

	tr, err := transport.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	if err := exchange(ctx, wsConn, tr, true); err != nil {
		tr.Close()
		return nil, err
	}
	return tr, nil
}

// EstablishAsBridge runs the bridge-side flow: dial the stub's WS URL,
// answer its offer, and block until the DataChannel opens.
func EstablishAsBridge(ctx context.Context, wsURL string) (*transport.Transport, error) {
	wsConn, err := connect(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogDebug("WS connected: %s", wsURL)

	tr, err := transport.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	if err := exchange(ctx, wsConn, tr, false); err != nil {
		tr.Close()
		return nil, err
	}
	return tr, nil
}

// exchange performs the SDP/ICE exchange over the WS connection and waits
// for the DataChannel to open. The offering side sends the offer first; the
// answering side waits for it.
func exchange(ctx context.Context, wsConn *websocket.Conn, tr *transport.Transport, offering bool) error {
	var wsMu sync.Mutex
	wsSend := func(msg message) {
		wsMu.Lock()
		defer wsMu.Unlock()
		if err := wsConn.WriteJSON(msg); err != nil {
			// If WS closed because tr.Ready() already fired, that's fine.
			select {
			case <-tr.Ready():
			default:
				util.LogWarning("WS send failed: %v", err)
			}
		}
	}

	// Trickle ICE candidates.
	tr.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, _ := json.Marshal(c.ToJSON())
		wsSend(message{Type: msgTypeCandidate, Candidate: string(data)})
	})

	// Read loop: counterpart SDP + ICE candidates.
	errCh := make(chan error, 1)
	go func() {
		for {
			var msg message
			if err := wsConn.ReadJSON(&msg); err != nil {
				errCh <- err
				return
			}

			switch msg.Type {
			case msgTypeOffer:
				if err := tr.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeOffer,
					SDP:  msg.SDP,
				}); err != nil {
					util.LogWarning("SetRemoteDescription failed: %v", err)
					continue
				}
				answer, err := tr.CreateAnswer()
				if err != nil {
					util.LogWarning("CreateAnswer failed: %v", err)
					continue
				}
				if err := tr.SetLocalDescription(answer); err != nil {
					util.LogWarning("SetLocalDescription failed: %v", err)
					continue
				}
				wsSend(message{Type: msgTypeAnswer, SDP: answer.SDP})

			case msgTypeAnswer:
				if err := tr.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  msg.SDP,
				}); err != nil {
					util.LogWarning("SetRemoteDescription failed: %v", err)
				}

			case msgTypeCandidate:
				var init webrtc.ICECandidateInit
				if err := json.Unmarshal([]byte(msg.Candidate), &init); err == nil {
					if err := tr.AddICECandidate(init); err != nil {
						util.LogWarning("AddICECandidate failed: %v", err)
					}
				}
			}
		}
	}()

	if offering {
		offer, err := tr.CreateOffer()
		if err != nil {
			return fmt.Errorf("CreateOffer: %w", err)
		}
		if err := tr.SetLocalDescription(offer); err != nil {
			return fmt.Errorf("SetLocalDescription: %w", err)
		}
		wsSend(message{Type: msgTypeOffer, SDP: offer.SDP})
	}

	// Wait for the DataChannel to open.
	select {
	case <-tr.Ready():
		util.LogDebug("WebRTC DataChannel established, closing WS")
		return nil

	case err := <-errCh:
		// If WS closed because tr.Ready() already fired, that's fine.
		select {
		case <-tr.Ready():
			return nil
		default:
			return fmt.Errorf("signaling failed: %w", err)
		}

	case <-ctx.Done():
		return ctx.Err()
	}
}
