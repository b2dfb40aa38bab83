package service

import (
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// Shutdown переводит health в NOT_SERVING и ждет завершения вызовов.
// Если вызовы не закончились за timeout, соединения закрываются принудительно.
func Shutdown(srv *grpc.Server, hs *health.Server, timeout time.Duration) {
	if hs != nil {
		hs.Shutdown()
	}

	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[Service] gRPC server stopped")
	case <-time.After(timeout):
		log.Printf("[Service] graceful stop timed out after %s, forcing", timeout)
		srv.Stop()
		<-done
	}
}
