package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/google/uuid"
	"github.com/gridlabs/quadgrid/featureflag"
	"github.com/gridlabs/quadgrid/models"
	"github.com/gridlabs/quadgrid/quadtree"
	"golang.org/x/net/websocket"
)

const (
	errTypeBadRequest      = "bad_request"
	errTypeClientIdle      = "client_idle"
	errTypeGridNotFound    = "grid_not_found"
	errTypeGridNotJoined   = "grid_not_joined"
	errTypeFeatureDisabled = "feature_disabled"
)

// RealtimeHandler handles one client driving grids interactively.
type RealtimeHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The grid store shared by every connection.
	Grids *models.GridStore

	// The defaults applied when a grid_join request creates a grid
	// without dimensions.
	DefaultGridWidth      int
	DefaultGridHeight     int
	DefaultMaxLeafObjects int

	// The enabled feature flags.
	FeatureFlags featureflag.FeatureFlag

	clientID       string
	currentGrid    *models.Grid
	subscriptionID uint32
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = uuid.New().String()
	instrumentConnectedClients(1)
}

func (h *RealtimeHandler) HandleGridJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	h.leaveCurrentGrid()

	var grid *models.Grid
	if msg.GridID != 0 {
		var ok bool
		grid, ok = h.Grids.GetByID(msg.GridID)
		if !ok {
			return errors.New("grid not found").
				WithType(errTypeGridNotFound).
				WithTag("grid_id", msg.GridID)
		}
	} else {
		w := msg.W
		if w == 0 {
			w = h.DefaultGridWidth
		}
		height := msg.H
		if height == 0 {
			height = h.DefaultGridHeight
		}
		maxLeafObjects := msg.MaxLeafObjects
		if maxLeafObjects == 0 {
			maxLeafObjects = h.DefaultMaxLeafObjects
		}
		if w < 1 || w > quadtree.MaxSide || height < 1 || height > quadtree.MaxSide {
			return errors.New("invalid grid size").
				WithType(errTypeBadRequest).
				WithTag("w", w).
				WithTag("h", height)
		}

		grid = models.NewGrid(h.Grids.NewID(), w, height, maxLeafObjects)
		h.Grids.Add(grid)
	}

	h.currentGrid = grid
	h.FeatureFlags.IfNotSet(featureflag.FlagDisableLeafEventBroadcast, func() {
		h.subscriptionID = grid.Subscribe(func(e models.LeafEvent) {
			msgType := MsgTypeLeafRemoved
			if e.Created {
				msgType = MsgTypeLeafCreated
			}
			node := e.Node
			respond.Send(Msg{
				Type: msgType,
				Node: &node,
			})
		})
	})

	respond.Send(Msg{
		Type:      MsgTypeGridJoinResponse,
		RequestID: msg.RequestID,
		GridID:    grid.ID,
		W:         grid.W,
		H:         grid.H,
	})
	return nil
}

func (h *RealtimeHandler) HandleObjectAdd(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}

	id, ok := grid.AddObject(msg.X, msg.Y)
	if !ok {
		return errors.New("position is out of the grid").
			WithType(errTypeBadRequest).
			WithTag("x", msg.X).
			WithTag("y", msg.Y)
	}

	respond.Send(Msg{
		Type:      MsgTypeObjectAddResponse,
		RequestID: msg.RequestID,
		X:         msg.X,
		Y:         msg.Y,
		ObjectID:  id,
	})
	return nil
}

func (h *RealtimeHandler) HandleObjectRemove(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}

	if !grid.RemoveObject(msg.X, msg.Y, msg.ObjectID) {
		return errors.New("object not found").
			WithType(errTypeBadRequest).
			WithTag("x", msg.X).
			WithTag("y", msg.Y).
			WithTag("object_id", msg.ObjectID)
	}

	respond.Send(Msg{
		Type:      MsgTypeObjectRemoveResponse,
		RequestID: msg.RequestID,
		X:         msg.X,
		Y:         msg.Y,
		ObjectID:  msg.ObjectID,
	})
	return nil
}

func (h *RealtimeHandler) HandleFind(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}

	response := Msg{
		Type:      MsgTypeFindResponse,
		RequestID: msg.RequestID,
		X:         msg.X,
		Y:         msg.Y,
	}
	if node, ok := grid.LeafAt(msg.X, msg.Y); ok {
		response.Node = &node
	}
	respond.Send(response)
	return nil
}

func (h *RealtimeHandler) HandleQueryRange(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}
	if err := h.featureEnabled(featureflag.FlagDisableRangeQueries); err != nil {
		return err
	}

	respond.Send(Msg{
		Type:      MsgTypeQueryRangeResponse,
		RequestID: msg.RequestID,
		Objects:   grid.ObjectsInRange(msg.X, msg.Y, msg.X2, msg.Y2),
	})
	return nil
}

func (h *RealtimeHandler) HandleCoveringNode(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}
	if err := h.featureEnabled(featureflag.FlagDisableRangeQueries); err != nil {
		return err
	}

	response := Msg{
		Type:      MsgTypeCoveringNodeResponse,
		RequestID: msg.RequestID,
	}
	if node, ok := grid.CoveringNode(msg.X, msg.Y, msg.X2, msg.Y2); ok {
		response.Node = &node
	}
	respond.Send(response)
	return nil
}

func (h *RealtimeHandler) HandleNeighbours(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}
	if err := h.featureEnabled(featureflag.FlagDisableNeighbourQueries); err != nil {
		return err
	}
	if msg.Dir < quadtree.DirN || msg.Dir > quadtree.DirSW {
		return errors.New("invalid direction").
			WithType(errTypeBadRequest).
			WithTag("dir", msg.Dir)
	}

	respond.Send(Msg{
		Type:      MsgTypeNeighboursResponse,
		RequestID: msg.RequestID,
		Dir:       msg.Dir,
		Nodes:     grid.NeighbourLeaves(msg.X, msg.Y, msg.Dir),
	})
	return nil
}

func (h *RealtimeHandler) HandleSnapshot(ctx context.Context, respond ResponseSender, msg Msg) error {
	grid, err := h.joinedGrid(msg)
	if err != nil {
		return err
	}
	if err := h.featureEnabled(featureflag.FlagDisableSnapshot); err != nil {
		return err
	}

	snapshot := grid.Snapshot(true)
	respond.Send(Msg{
		Type:      MsgTypeSnapshotResponse,
		RequestID: msg.RequestID,
		Snapshot:  &snapshot,
	})
	return nil
}

func (h *RealtimeHandler) HandleDisconnect(err error) {
	h.leaveCurrentGrid()
	instrumentConnectedClients(-1)
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

// CurrentGrid returns the grid the client joined, if any.
func (h *RealtimeHandler) CurrentGrid() *models.Grid {
	return h.currentGrid
}

func (h *RealtimeHandler) joinedGrid(msg Msg) (*models.Grid, error) {
	if h.currentGrid == nil {
		return nil, errors.New("grid not joined").
			WithType(errTypeGridNotJoined).
			WithTag("msg_type", msg.Type)
	}
	return h.currentGrid, nil
}

func (h *RealtimeHandler) featureEnabled(flag featureflag.Flag) error {
	var err error
	h.FeatureFlags.IfSet(flag, func() {
		err = errors.New("feature is disabled").
			WithType(errTypeFeatureDisabled).
			WithTag("flag", flag)
	})
	return err
}

func (h *RealtimeHandler) leaveCurrentGrid() {
	if h.currentGrid == nil {
		return
	}
	if h.subscriptionID != 0 {
		h.currentGrid.Unsubscribe(h.subscriptionID)
		h.subscriptionID = 0
	}
	h.currentGrid = nil
}
