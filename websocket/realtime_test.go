package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/gridlabs/quadgrid/featureflag"
	"github.com/gridlabs/quadgrid/models"
	"github.com/gridlabs/quadgrid/quadtree"
	"github.com/stretchr/testify/require"
)

type msgRecorder struct {
	msgs []Msg
}

func (r *msgRecorder) Send(msg Msg) {
	r.msgs = append(r.msgs, msg)
}

func (r *msgRecorder) last() Msg {
	return r.msgs[len(r.msgs)-1]
}

func newTestHandler(flags ...string) *RealtimeHandler {
	return &RealtimeHandler{
		ClientIdleTimeout:     time.Minute,
		Grids:                 &models.GridStore{},
		DefaultGridWidth:      8,
		DefaultGridHeight:     8,
		DefaultMaxLeafObjects: 1,
		FeatureFlags:          featureflag.New(flags),
	}
}

func joinGrid(t *testing.T, h *RealtimeHandler, respond *msgRecorder) {
	t.Helper()

	err := h.HandleGridJoin(context.Background(), respond, Msg{
		Type:      MsgTypeGridJoin,
		RequestID: 1,
	})
	require.NoError(t, err)
	require.Equal(t, MsgTypeGridJoinResponse, respond.last().Type)
	require.NotNil(t, h.CurrentGrid())
}

func TestRealtimeHandlerGridJoin(t *testing.T) {
	t.Run("joining without a grid id creates a grid", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder

		joinGrid(t, h, &respond)
		require.Equal(t, 8, respond.last().W)
		require.Equal(t, 8, respond.last().H)
		require.Equal(t, uint32(1), respond.last().RequestID)
	})

	t.Run("joining an existing grid", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder
		joinGrid(t, h, &respond)
		gridID := respond.last().GridID

		other := newTestHandler()
		other.Grids = h.Grids
		var otherRespond msgRecorder
		err := other.HandleGridJoin(context.Background(), &otherRespond, Msg{
			Type:   MsgTypeGridJoin,
			GridID: gridID,
		})
		require.NoError(t, err)
		require.Equal(t, gridID, otherRespond.last().GridID)
	})

	t.Run("joining an unknown grid fails", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder

		err := h.HandleGridJoin(context.Background(), &respond, Msg{
			Type:   MsgTypeGridJoin,
			GridID: 42,
		})
		require.Error(t, err)
		require.Equal(t, errTypeGridNotFound, errors.Type(err))
	})

	t.Run("joining with an oversized grid fails", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder

		err := h.HandleGridJoin(context.Background(), &respond, Msg{
			Type: MsgTypeGridJoin,
			W:    quadtree.MaxSide + 1,
			H:    8,
		})
		require.Error(t, err)
		require.Equal(t, errTypeBadRequest, errors.Type(err))
	})
}

func TestRealtimeHandlerObjectAdd(t *testing.T) {
	t.Run("object is added", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder
		joinGrid(t, h, &respond)

		err := h.HandleObjectAdd(context.Background(), &respond, Msg{
			Type:      MsgTypeObjectAdd,
			RequestID: 2,
			X:         2,
			Y:         3,
		})
		require.NoError(t, err)

		res := respond.last()
		require.Equal(t, MsgTypeObjectAddResponse, res.Type)
		require.Equal(t, uint32(2), res.RequestID)
		require.NotZero(t, res.ObjectID)
		require.Equal(t, 1, h.CurrentGrid().NumObjects())
	})

	t.Run("out of range add fails", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder
		joinGrid(t, h, &respond)

		err := h.HandleObjectAdd(context.Background(), &respond, Msg{
			Type: MsgTypeObjectAdd,
			X:    9,
			Y:    0,
		})
		require.Error(t, err)
		require.Equal(t, errTypeBadRequest, errors.Type(err))
	})

	t.Run("add without a joined grid fails", func(t *testing.T) {
		h := newTestHandler()
		var respond msgRecorder

		err := h.HandleObjectAdd(context.Background(), &respond, Msg{
			Type: MsgTypeObjectAdd,
			X:    1,
			Y:    1,
		})
		require.Error(t, err)
		require.Equal(t, errTypeGridNotJoined, errors.Type(err))
	})
}

func TestRealtimeHandlerObjectRemove(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd,
		X:    2,
		Y:    3,
	}))
	objectID := respond.last().ObjectID

	t.Run("unknown object remove fails", func(t *testing.T) {
		err := h.HandleObjectRemove(context.Background(), &respond, Msg{
			Type:     MsgTypeObjectRemove,
			X:        2,
			Y:        3,
			ObjectID: objectID + 1,
		})
		require.Error(t, err)
		require.Equal(t, errTypeBadRequest, errors.Type(err))
	})

	t.Run("object is removed", func(t *testing.T) {
		err := h.HandleObjectRemove(context.Background(), &respond, Msg{
			Type:     MsgTypeObjectRemove,
			X:        2,
			Y:        3,
			ObjectID: objectID,
		})
		require.NoError(t, err)
		require.Equal(t, MsgTypeObjectRemoveResponse, respond.last().Type)
		require.Zero(t, h.CurrentGrid().NumObjects())
	})
}

func TestRealtimeHandlerFind(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	err := h.HandleFind(context.Background(), &respond, Msg{
		Type: MsgTypeFind,
		X:    5,
		Y:    2,
	})
	require.NoError(t, err)

	res := respond.last()
	require.Equal(t, MsgTypeFindResponse, res.Type)
	require.NotNil(t, res.Node)
	require.True(t, res.Node.Leaf)

	t.Run("out of range find returns no node", func(t *testing.T) {
		err := h.HandleFind(context.Background(), &respond, Msg{
			Type: MsgTypeFind,
			X:    -1,
			Y:    2,
		})
		require.NoError(t, err)
		require.Nil(t, respond.last().Node)
	})
}

func TestRealtimeHandlerQueryRange(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 2, Y: 3,
	}))
	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 3, Y: 4,
	}))
	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 7, Y: 7,
	}))

	err := h.HandleQueryRange(context.Background(), &respond, Msg{
		Type: MsgTypeQueryRange,
		X:    1, Y: 2, X2: 4, Y2: 4,
	})
	require.NoError(t, err)

	res := respond.last()
	require.Equal(t, MsgTypeQueryRangeResponse, res.Type)
	require.Len(t, res.Objects, 2)

	t.Run("disabled by feature flag", func(t *testing.T) {
		h := newTestHandler(string(featureflag.FlagDisableRangeQueries))
		var respond msgRecorder
		joinGrid(t, h, &respond)

		err := h.HandleQueryRange(context.Background(), &respond, Msg{
			Type: MsgTypeQueryRange,
			X:    0, Y: 0, X2: 7, Y2: 7,
		})
		require.Error(t, err)
		require.Equal(t, errTypeFeatureDisabled, errors.Type(err))
	})
}

func TestRealtimeHandlerCoveringNode(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	err := h.HandleCoveringNode(context.Background(), &respond, Msg{
		Type: MsgTypeCoveringNode,
		X:    1, Y: 1, X2: 6, Y2: 6,
	})
	require.NoError(t, err)

	res := respond.last()
	require.Equal(t, MsgTypeCoveringNodeResponse, res.Type)
	require.NotNil(t, res.Node)
	require.Equal(t, 0, res.Node.Depth)
}

func TestRealtimeHandlerNeighbours(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 2, Y: 3,
	}))
	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 3, Y: 4,
	}))

	err := h.HandleNeighbours(context.Background(), &respond, Msg{
		Type: MsgTypeNeighbours,
		X:    0, Y: 0,
		Dir: quadtree.DirE,
	})
	require.NoError(t, err)

	res := respond.last()
	require.Equal(t, MsgTypeNeighboursResponse, res.Type)
	require.Len(t, res.Nodes, 1)

	t.Run("invalid direction fails", func(t *testing.T) {
		err := h.HandleNeighbours(context.Background(), &respond, Msg{
			Type: MsgTypeNeighbours,
			X:    0, Y: 0,
			Dir: 8,
		})
		require.Error(t, err)
		require.Equal(t, errTypeBadRequest, errors.Type(err))
	})
}

func TestRealtimeHandlerSnapshot(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 2, Y: 3,
	}))

	err := h.HandleSnapshot(context.Background(), &respond, Msg{
		Type: MsgTypeSnapshot,
	})
	require.NoError(t, err)

	res := respond.last()
	require.Equal(t, MsgTypeSnapshotResponse, res.Type)
	require.NotNil(t, res.Snapshot)
	require.Equal(t, 1, res.Snapshot.NumObjects)
	require.Len(t, res.Snapshot.Nodes, res.Snapshot.NumNodes)
}

func TestRealtimeHandlerLeafEvents(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)

	// The second object splits the root leaf: the subscription streams
	// one removal and four creations.
	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 2, Y: 3,
	}))
	require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
		Type: MsgTypeObjectAdd, X: 5, Y: 6,
	}))

	created := 0
	removed := 0
	for _, msg := range respond.msgs {
		switch msg.Type {
		case MsgTypeLeafCreated:
			created++
		case MsgTypeLeafRemoved:
			removed++
		}
	}
	require.Equal(t, 4, created)
	require.Equal(t, 1, removed)

	t.Run("broadcast disabled by feature flag", func(t *testing.T) {
		h := newTestHandler(string(featureflag.FlagDisableLeafEventBroadcast))
		var respond msgRecorder
		joinGrid(t, h, &respond)

		require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
			Type: MsgTypeObjectAdd, X: 2, Y: 3,
		}))
		require.NoError(t, h.HandleObjectAdd(context.Background(), &respond, Msg{
			Type: MsgTypeObjectAdd, X: 5, Y: 6,
		}))

		for _, msg := range respond.msgs {
			require.NotEqual(t, MsgTypeLeafCreated, msg.Type)
			require.NotEqual(t, MsgTypeLeafRemoved, msg.Type)
		}
	})
}

func TestRealtimeHandlerDisconnect(t *testing.T) {
	h := newTestHandler()
	var respond msgRecorder
	joinGrid(t, h, &respond)
	grid := h.CurrentGrid()

	h.HandleDisconnect(nil)
	require.Nil(t, h.CurrentGrid())

	// The subscription is gone: mutations no longer reach the client.
	before := len(respond.msgs)
	grid.AddObject(1, 1)
	grid.AddObject(6, 2)
	require.Len(t, respond.msgs, before)
}
