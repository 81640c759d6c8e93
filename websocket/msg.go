package websocket

import (
	"github.com/gridlabs/quadgrid/models"
)

// MsgType identifies a message exchanged with a connected client.
type MsgType string

const (
	MsgTypeGridJoin             MsgType = "grid_join"
	MsgTypeGridJoinResponse     MsgType = "grid_join_response"
	MsgTypeObjectAdd            MsgType = "object_add"
	MsgTypeObjectAddResponse    MsgType = "object_add_response"
	MsgTypeObjectRemove         MsgType = "object_remove"
	MsgTypeObjectRemoveResponse MsgType = "object_remove_response"
	MsgTypeFind                 MsgType = "find"
	MsgTypeFindResponse         MsgType = "find_response"
	MsgTypeQueryRange           MsgType = "query_range"
	MsgTypeQueryRangeResponse   MsgType = "query_range_response"
	MsgTypeCoveringNode         MsgType = "covering_node"
	MsgTypeCoveringNodeResponse MsgType = "covering_node_response"
	MsgTypeNeighbours           MsgType = "neighbours"
	MsgTypeNeighboursResponse   MsgType = "neighbours_response"
	MsgTypeSnapshot             MsgType = "snapshot"
	MsgTypeSnapshotResponse     MsgType = "snapshot_response"
	MsgTypeLeafCreated          MsgType = "leaf_created"
	MsgTypeLeafRemoved          MsgType = "leaf_removed"
	MsgTypeError                MsgType = "error"
)

// Msg is the wire envelope for every client and server message.
// Requests carry positions in the row/column convention of the tree:
// x is the row, y the column, and (x,y)-(x2,y2) an inclusive
// rectangle.
type Msg struct {
	Type      MsgType `json:"type"`
	RequestID uint32  `json:"request_id,omitempty"`

	// grid_join. A zero GridID creates a new grid using W, H and
	// MaxLeafObjects, which fall back to the server defaults.
	GridID         uint32 `json:"grid_id,omitempty"`
	W              int    `json:"w,omitempty"`
	H              int    `json:"h,omitempty"`
	MaxLeafObjects int    `json:"max_leaf_objects,omitempty"`

	X        int    `json:"x"`
	Y        int    `json:"y"`
	X2       int    `json:"x2"`
	Y2       int    `json:"y2"`
	Dir      int    `json:"dir,omitempty"`
	ObjectID uint32 `json:"object_id,omitempty"`

	Node     *models.NodeInfo     `json:"node,omitempty"`
	Nodes    []models.NodeInfo    `json:"nodes,omitempty"`
	Objects  []models.ObjectInfo  `json:"objects,omitempty"`
	Snapshot *models.GridSnapshot `json:"snapshot,omitempty"`

	// error responses.
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
}

// ResponseSender sends messages back to the connected client.
type ResponseSender interface {
	Send(Msg)
}
