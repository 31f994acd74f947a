package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"example.com/travel-insurance/pkg/config"
	"example.com/travel-insurance/pkg/logger"
)

// shutdownTimeout — время на завершение активных запросов при остановке.
const shutdownTimeout = 15 * time.Second

// Serve запускает HTTP сервер и блокирует до отмены ctx,
// после чего дожидается завершения активных запросов.
func Serve(ctx context.Context, cfg config.HTTPConfig, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Остановка HTTP сервера")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
