// Test transcription backend for local development. It accepts the binary
// audio frame protocol over WebSocket and answers every utterance with a
// canned transcription.
//
// Usage: go run test_transcription_server.go
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/coder/websocket"

	"github.com/longduongbao29/Translator-app-sub001/internal/protocol"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	http.HandleFunc("/api/v1/ws/speech2text", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.Error("Failed to accept connection", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		logger.Info("Client connected", "remote", r.RemoteAddr)

		if err := conn.Write(ctx, websocket.MessageText, []byte(`{"status":"connected"}`)); err != nil {
			return
		}

		utterances := 0
		for {
			msgType, data, err := conn.Read(ctx)
			if err != nil {
				logger.Info("Client disconnected", "remote", r.RemoteAddr)
				return
			}
			if msgType != websocket.MessageBinary {
				continue
			}

			meta, payload, err := protocol.DecodeFrame(data)
			if err != nil {
				logger.Warn("Malformed frame", "error", err)
				continue
			}

			utterances++
			logger.Info("Received utterance",
				"bytes", len(payload),
				"sample_rate", meta.SampleRate,
				"language", meta.Language)

			partial := fmt.Sprintf(`{"type":"realtime","text":"utterance %d"}`, utterances)
			if err := conn.Write(ctx, websocket.MessageText, []byte(partial)); err != nil {
				return
			}

			final := fmt.Sprintf(`{"type":"fullSentence","text":"Test transcription %d."}`, utterances)
			if err := conn.Write(ctx, websocket.MessageText, []byte(final)); err != nil {
				return
			}
		}
	})

	addr := "localhost:8012"
	logger.Info("Test transcription server listening", "address", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
