// Command cafwatch serves a live status feed for a caf repository over a
// WebSocket, so a browser tab can show working-tree state without
// polling the filesystem itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/poslevkusie7/caf/internal/cafcore"
	"github.com/poslevkusie7/caf/internal/watchserver"
)

const (
	metaDirName     = ".caf"
	shutdownTimeout = 5 * time.Second
)

func main() {
	addr := flag.String("addr", "127.0.0.1:4420", "address to listen on")
	flag.Parse()

	repo, err := cafcore.Open(".", metaDirName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(128)
	}

	logger := slog.Default()
	srv := watchserver.New(repo, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := srv.Start(ctx); err != nil {
			logger.Error("watch loop exited", "err", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/ws", srv.Handler())
	mux.HandleFunc("/", serveIndex)

	httpServer := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	logger.Info("cafwatch listening", "addr", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexPage)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>caf watch</title></head>
<body>
<h1>caf working tree status</h1>
<pre id="status">connecting...</pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => {
  document.getElementById("status").textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
};
ws.onclose = () => {
  document.getElementById("status").textContent = "disconnected";
};
</script>
</body>
</html>
`
