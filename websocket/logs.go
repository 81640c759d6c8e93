package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/gridlabs/quadgrid/models"
	"golang.org/x/net/websocket"
)

const clientIDTag = "client_id"

// HandlerWithLogs decorates the given handler with connection logs and
// a periodic inbound message summary.
func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	gridID uint32

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	logs.WithTag(clientIDTag, h.GetClientID()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleGridJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	if err := h.Handler.HandleGridJoin(ctx, respond, msg); err != nil {
		return err
	}
	h.incCounter(string(msg.Type))

	grid := h.currentGrid()
	if grid == nil {
		return nil
	}
	h.gridID = grid.ID

	logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("grid_id", grid.ID).
		WithTag("grid_uuid", grid.GridUUID).
		WithTag("grid_w", grid.W).
		WithTag("grid_h", grid.H).
		WithTag("request_id", msg.RequestID).
		Info("client joined a grid")
	return nil
}

func (h *handlerWithLogs) HandleObjectAdd(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleObjectAdd(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleObjectRemove(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleObjectRemove(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleFind(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleFind(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleQueryRange(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleQueryRange(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleCoveringNode(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleCoveringNode(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleNeighbours(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleNeighbours(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleSnapshot(ctx context.Context, respond ResponseSender, msg Msg) error {
	return h.count(msg, h.Handler.HandleSnapshot(ctx, respond, msg))
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	logs.WithTag(clientIDTag, h.GetClientID()).
		WithTag("grid_id", h.gridID).
		Info("client disconnected")
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) count(msg Msg, err error) error {
	if err == nil {
		h.incCounter(string(msg.Type))
	}
	return err
}

func (h *handlerWithLogs) currentGrid() *models.Grid {
	type currentGridProvider interface {
		CurrentGrid() *models.Grid
	}
	if p, ok := h.Handler.(currentGridProvider); ok {
		return p.CurrentGrid()
	}
	return nil
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := logs.
		WithTag(clientIDTag, h.GetClientID()).
		WithTag("grid_id", h.gridID).
		WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}
