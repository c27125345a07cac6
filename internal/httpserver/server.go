package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/andrebq/postbox/internal/config"
	"github.com/andrebq/postbox/internal/logutil"
	"github.com/klauspost/compress/gzhttp"
)

// Serve listens on bind until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, bind string, handler http.Handler, opts config.ServerConfig) error {
	l, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	return ServeListener(ctx, l, handler, opts)
}

// ServeListener takes ownership of l. Responses are gzip compressed
// when the client accepts it and every request gets an access log line.
func ServeListener(ctx context.Context, l net.Listener, handler http.Handler, opts config.ServerConfig) error {
	log := logutil.GetOrDefault(ctx).With().Str("server.addr", l.Addr().String()).Logger()
	server := http.Server{
		Handler:           logutil.Middleware(log, gzhttp.GzipHandler(handler)),
		ReadTimeout:       opts.ReadTimeout.Std(),
		WriteTimeout:      opts.WriteTimeout.Std(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout.Std(),
		IdleTimeout:       opts.IdleTimeout.Std(),
		BaseContext:       func(net.Listener) context.Context { return logutil.WithLogger(ctx, log) },
	}
	grace := opts.ShutdownGrace.Std()
	if grace <= 0 {
		grace = time.Minute
	}

	serveErr := make(chan error, 1)
	go func() {
		defer close(serveErr)
		log.Info().Msg("Starting HTTP server")
		err := server.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			log.Info().Msg("Server closed")
			// shutdown called, ignore the error
			return
		}
		serveErr <- err
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("Initiating shutdown process")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	<-serveErr
	log.Info().Msg("Shutdown completed")
	return err
}
