// Command relaypeer is a minimal peer service for local federation testing.
// It serves the two well-known paths the hub consumes: the status endpoint
// probed by the presence poller and the messages endpoint used for delivery.
// Every received message is logged and acknowledged as delivered.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/relayhub/relay/internal/delivery"
	"github.com/relayhub/relay/internal/presence"
	"github.com/relayhub/relay/internal/registry"
	"go.uber.org/zap"
)

func main() {
	listenFlag := flag.String("listen", ":9001", "listen address")
	rejectFlag := flag.Bool("reject", false, "acknowledge messages with delivered=false")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+presence.StatusPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": presence.StatusOnline})
	})
	mux.HandleFunc("POST "+delivery.MessagesPath, func(w http.ResponseWriter, r *http.Request) {
		var msg registry.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		logger.Info("message received",
			zap.Int("message_id", msg.ID),
			zap.Int("from", msg.From),
			zap.String("text", msg.Text))
		msg.Delivered = !*rejectFlag
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(msg)
	})

	logger.Info("peer listening", zap.String("addr", *listenFlag))
	if err := http.ListenAndServe(*listenFlag, mux); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
