package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	msgTypeLabel = "msg_type"
	errTypeLabel = "error_type"
)

var (
	wsConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{
		msgTypeLabel,
	})

	wsHandleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_handle_errors",
		Help: "The errors that occured while handling a message.",
	}, []string{
		msgTypeLabel,
		errTypeLabel,
	})

	wsDroppedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_dropped_msgs",
		Help: "The messages dropped because a client send queue was saturated.",
	}, []string{
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to handle a message.",
	}, []string{
		msgTypeLabel,
	})
)

func instrumentConnectedClients(delta float64) {
	wsConnectedClients.Add(delta)
}

func instrumentReceivedMsg(msgType MsgType) {
	wsReceivedMsgs.
		With(prometheus.Labels{msgTypeLabel: string(msgType)}).
		Inc()
}

func instrumentHandleError(msgType MsgType, err error) {
	wsHandleErrors.
		With(prometheus.Labels{
			msgTypeLabel: string(msgType),
			errTypeLabel: errors.Type(err),
		}).
		Inc()
}

func instrumentDroppedMsg(msgType MsgType) {
	wsDroppedMsgs.
		With(prometheus.Labels{msgTypeLabel: string(msgType)}).
		Inc()
}

func instrumentMsgLatency(msgType MsgType, start time.Time) {
	wsMsgLatency.
		With(prometheus.Labels{msgTypeLabel: string(msgType)}).
		Observe(time.Since(start).Seconds())
}
