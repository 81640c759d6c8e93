package websocket

import (
	"context"
	"io"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize = 512
)

// jsonCodec marshals wire messages with the same JSON encoder used by
// the rest of the server.
var jsonCodec = websocket.Codec{
	Marshal: func(v any) ([]byte, byte, error) {
		data, err := json.Marshal(v)
		return data, websocket.TextFrame, err
	},
	Unmarshal: func(data []byte, payloadType byte, v any) error {
		return json.Unmarshal(data, v)
	},
}

// Handler represents a quadgrid connection handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a request to join or create a grid.
	HandleGridJoin(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to store an object.
	HandleObjectAdd(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to remove an object.
	HandleObjectRemove(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a leaf lookup by position.
	HandleFind(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a rectangle range query.
	HandleQueryRange(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a smallest-covering-node query.
	HandleCoveringNode(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a leaf neighbour enumeration.
	HandleNeighbours(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a whole-grid snapshot request.
	HandleSnapshot(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Closes the handler and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Get the client id.
	GetClientID() string
}

// Handle serves the given connection with the given handler.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The quadgrid handler.
	Handler Handler

	sendChan       chan Msg
	recvChan       chan Msg
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.sendChan = make(chan Msg, sendChanSize)
	h.recvChan = make(chan Msg)
	h.disconnectChan = make(chan error, 8)

	go h.startSending(ctx)
	go h.startReceiving(ctx)

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{send: h.send}

	var disconnectErr error

loop:
	for {
		select {
		case <-ctx.Done():
			disconnectErr = ctx.Err()
			break loop

		case err := <-h.disconnectChan:
			disconnectErr = err
			break loop

		case <-idleTimer.C:
			disconnectErr = errors.New("client is idle").
				WithType(errTypeClientIdle)
			break loop

		case msg := <-h.recvChan:
			idleTimer.Reset(idleTimeout)
			if err := h.handleMsg(ctx, responder, msg); err != nil {
				instrumentHandleError(msg.Type, err)
				logs.WithTag("client_id", h.Handler.GetClientID()).
					WithTag("msg_type", msg.Type).
					Error(errors.New("handling message failed").Wrap(err))

				responder.Send(Msg{
					Type:      MsgTypeError,
					RequestID: msg.RequestID,
					Error:     err.Error(),
					ErrorType: errors.Type(err),
				})
			}
		}
	}

	h.Handler.HandleDisconnect(disconnectErr)
}

func (h *handler) handleMsg(ctx context.Context, respond ResponseSender, msg Msg) error {
	start := time.Now()
	defer instrumentMsgLatency(msg.Type, start)
	instrumentReceivedMsg(msg.Type)

	switch msg.Type {
	case MsgTypeGridJoin:
		return h.Handler.HandleGridJoin(ctx, respond, msg)

	case MsgTypeObjectAdd:
		return h.Handler.HandleObjectAdd(ctx, respond, msg)

	case MsgTypeObjectRemove:
		return h.Handler.HandleObjectRemove(ctx, respond, msg)

	case MsgTypeFind:
		return h.Handler.HandleFind(ctx, respond, msg)

	case MsgTypeQueryRange:
		return h.Handler.HandleQueryRange(ctx, respond, msg)

	case MsgTypeCoveringNode:
		return h.Handler.HandleCoveringNode(ctx, respond, msg)

	case MsgTypeNeighbours:
		return h.Handler.HandleNeighbours(ctx, respond, msg)

	case MsgTypeSnapshot:
		return h.Handler.HandleSnapshot(ctx, respond, msg)

	default:
		return errors.New("unsupported message type").
			WithType(errTypeBadRequest).
			WithTag("msg_type", msg.Type)
	}
}

// send enqueues a message to the client, dropping it when the send
// queue is saturated. Dropping is acceptable since every response and
// event can be recovered with a snapshot request.
func (h *handler) send(msg Msg) {
	select {
	case h.sendChan <- msg:
	default:
		instrumentDroppedMsg(msg.Type)
	}
}

func (h *handler) startSending(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if err := jsonCodec.Send(h.Conn, msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		var msg Msg
		if err := jsonCodec.Receive(h.Conn, &msg); err != nil {
			if err == io.EOF {
				h.disconnect(nil)
				return
			}
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.recvChan <- msg:
		}
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

type responseSender struct {
	send func(Msg)
}

func (s responseSender) Send(msg Msg) {
	s.send(msg)
}
