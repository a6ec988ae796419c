package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

// New cria o supervisor raiz com eventos registrados no zap.
// Serviços que falham são reiniciados com backoff.
func New(name string, log *zap.Logger) *suture.Supervisor {
	return suture.New(name, suture.Spec{
		EventHook:        hook(log),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
}

func hook(log *zap.Logger) suture.EventHook {
	return func(e suture.Event) {
		switch e.(type) {
		case suture.EventServicePanic, suture.EventStopTimeout:
			log.Error("supervisor event", zap.String("event", e.String()))
		case suture.EventServiceTerminate, suture.EventBackoff:
			log.Warn("supervisor event", zap.String("event", e.String()))
		default:
			log.Info("supervisor event", zap.String("event", e.String()))
		}
	}
}

// Func adapta uma função de loop (Run/Start) para suture.Service
type Func struct {
	Name string
	Run  func(ctx context.Context) error
}

func (f Func) Serve(ctx context.Context) error { return f.Run(ctx) }

func (f Func) String() string { return f.Name }

// HTTPServer roda srv até ctx ser cancelado e então faz shutdown gracioso
type HTTPServer struct {
	Name   string
	Server *http.Server
	Log    *zap.Logger
}

func (h HTTPServer) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		h.Log.Info("http server listening", zap.String("name", h.Name), zap.String("addr", h.Server.Addr))
		errCh <- h.Server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.Server.Shutdown(shutdownCtx)
	}
}

func (h HTTPServer) String() string { return h.Name }
