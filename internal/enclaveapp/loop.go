// Package enclaveapp implements the enclave's accept loop: a long-running
// loop driven by a context and shut down on cancellation, but strictly
// sequential rather than a goroutine-per-connection server.
package enclaveapp

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"github.com/Amnesic-Systems/tytle-enclaves/internal/handler"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/model"
	"github.com/Amnesic-Systems/tytle-enclaves/internal/wire"
)

// Port is the vsock port the accept loop listens on.
const Port = 5000

// acceptRetryDelay is how long the loop sleeps after a failed accept
// before retrying.
const acceptRetryDelay = 100 * time.Millisecond

// Run serves h over listener until ctx is cancelled. Exactly one
// connection is processed at a time, start to finish: accept, read one
// framed request, dispatch, write one framed reply, close. This ordering
// is a correctness requirement, not a performance default.
func Run(ctx context.Context, listener net.Listener, h handler.Handler) {
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Print("enclaveapp: shutting down")
				return
			}
			log.Printf("enclaveapp: accept failed: %v", err)
			time.Sleep(acceptRetryDelay)
			continue
		}

		serveOne(ctx, conn, h)
	}
}

// serveOne handles exactly one framed request/response exchange over conn,
// then closes it. Any error before a reply is written is folded into a
// best-effort failure frame; a failure to even write that frame is logged
// and swallowed: a closed connection on shutdown is not a failure.
func serveOne(ctx context.Context, conn net.Conn, h handler.Handler) {
	defer conn.Close()

	var req model.Request
	if err := wire.ReadMessage(conn, &req); err != nil {
		if errors.Is(err, wire.ErrTruncated) {
			return // peer hung up mid-frame; nothing meaningful to reply to
		}
		writeReplyBestEffort(conn, model.Failure(500, err))
		return
	}

	resp := func() (resp *model.Response) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("enclaveapp: handler panicked for request %s: %v", req.ID, r)
				resp = model.Failure(500, errors.New("internal handler error"))
			}
		}()
		return h.Handle(ctx, &req)
	}()
	log.Printf("enclaveapp: request %s: success=%v status=%d", req.ID, resp.Success, resp.Status)

	writeReplyBestEffort(conn, resp)
}

func writeReplyBestEffort(conn net.Conn, resp *model.Response) {
	if err := wire.WriteMessage(conn, resp); err != nil {
		log.Printf("enclaveapp: failed to write reply: %v", err)
	}
}
