package models

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gridlabs/quadgrid/quadtree"
)

// LeafEvent describes a leaf lifecycle change in a grid's tree.
type LeafEvent struct {
	Created bool     `json:"created"`
	Node    NodeInfo `json:"node"`
}

// LeafEventHandler receives leaf lifecycle events.
type LeafEventHandler func(LeafEvent)

// Grid is one live quadtree with its configuration. All tree accesses
// are serialized through the grid since the tree itself is not safe
// for concurrent use.
type Grid struct {
	ID       uint32
	GridUUID string

	// Width and height of the indexed region.
	W int
	H int

	// The maximum number of objects a leaf may hold before it splits.
	// Rectangles of at most 2x2 cells never split.
	MaxLeafObjects int

	mutex     sync.RWMutex
	tree      *quadtree.Tree[uint32]
	objectIDs SequentialIDGenerator

	// Leaf lifecycle events buffered by the tree hooks during a
	// mutation, broadcast once the mutation completes.
	pendingEvents []LeafEvent

	handlerIDs   SequentialIDGenerator
	handlerMutex sync.RWMutex
	handlers     map[uint32]LeafEventHandler
}

// NewGrid creates a grid of w columns and h rows and builds its tree.
func NewGrid(id uint32, w, h, maxLeafObjects int) *Grid {
	g := &Grid{
		ID:             id,
		GridUUID:       uuid.New().String(),
		W:              w,
		H:              h,
		MaxLeafObjects: maxLeafObjects,
		handlers:       make(map[uint32]LeafEventHandler),
	}

	ssf := func(w, h, n int) bool {
		return (w <= 2 && h <= 2) || n <= maxLeafObjects
	}
	g.tree = quadtree.New[uint32](w, h, ssf,
		quadtree.WithAfterLeafCreated[uint32](func(node *quadtree.Node[uint32]) {
			g.pendingEvents = append(g.pendingEvents,
				LeafEvent{Created: true, Node: NodeInfoFromTree(node)})
		}),
		quadtree.WithAfterLeafRemoved[uint32](func(node *quadtree.Node[uint32]) {
			g.pendingEvents = append(g.pendingEvents,
				LeafEvent{Node: NodeInfoFromTree(node)})
		}),
	)
	g.tree.Build()
	// Nobody subscribes before the grid exists, drop the build events.
	g.pendingEvents = nil
	return g
}

// AddObject stores a new object at position (x,y) and returns its
// assigned id. Reports false when the position is out of the region.
func (g *Grid) AddObject(x, y int) (uint32, bool) {
	if x < 0 || x >= g.H || y < 0 || y >= g.W {
		return 0, false
	}

	g.mutex.Lock()
	id := g.objectIDs.New()
	g.tree.Add(x, y, id)
	events := g.takeEvents()
	g.mutex.Unlock()

	instrumentGridObjects(1)
	g.broadcast(events)
	return id, true
}

// RemoveObject removes the object with the given id at position (x,y).
// Reports false when no such object exists.
func (g *Grid) RemoveObject(x, y int, id uint32) bool {
	g.mutex.Lock()
	before := g.tree.NumObjects()
	g.tree.Remove(x, y, id)
	removed := g.tree.NumObjects() != before
	if removed {
		g.objectIDs.Reuse(id)
	}
	events := g.takeEvents()
	g.mutex.Unlock()

	if !removed {
		return false
	}
	instrumentGridObjects(-1)
	g.broadcast(events)
	return true
}

// LeafAt returns the leaf node containing the position (x,y).
func (g *Grid) LeafAt(x, y int) (NodeInfo, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	node := g.tree.Find(x, y)
	if node == nil {
		return NodeInfo{}, false
	}
	return NodeInfoFromTree(node), true
}

// ObjectsInRange returns every object inside the inclusive rectangle
// (x1,y1)-(x2,y2).
func (g *Grid) ObjectsInRange(x1, y1, x2, y2 int) []ObjectInfo {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	var objects []ObjectInfo
	g.tree.QueryRange(x1, y1, x2, y2, func(x, y int, o uint32) {
		objects = append(objects, ObjectInfo{X: x, Y: y, ID: o})
	})
	return objects
}

// CoveringNode returns the deepest node whose rectangle encloses both
// (x1,y1) and (x2,y2).
func (g *Grid) CoveringNode(x1, y1, x2, y2 int) (NodeInfo, bool) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	node := g.tree.FindSmallestNodeCoveringRange(x1, y1, x2, y2)
	if node == nil {
		return NodeInfo{}, false
	}
	return NodeInfoFromTree(node), true
}

// NeighbourLeaves returns the leaves adjacent on direction dir to the
// leaf containing the position (x,y).
func (g *Grid) NeighbourLeaves(x, y, dir int) []NodeInfo {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	node := g.tree.Find(x, y)
	if node == nil {
		return nil
	}
	var neighbours []NodeInfo
	g.tree.FindNeighbourLeafNodes(node, dir, func(n *quadtree.Node[uint32]) {
		neighbours = append(neighbours, NodeInfoFromTree(n))
	})
	return neighbours
}

// GridSnapshot is the wire representation of a whole grid.
type GridSnapshot struct {
	ID             uint32     `json:"id"`
	UUID           string     `json:"uuid"`
	W              int        `json:"w"`
	H              int        `json:"h"`
	MaxLeafObjects int        `json:"max_leaf_objects"`
	NumNodes       int        `json:"num_nodes"`
	NumLeafNodes   int        `json:"num_leaf_nodes"`
	NumObjects     int        `json:"num_objects"`
	Depth          int        `json:"depth"`
	Nodes          []NodeInfo `json:"nodes,omitempty"`
}

// Snapshot returns the grid's counters, with every node when withNodes
// is set.
func (g *Grid) Snapshot(withNodes bool) GridSnapshot {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	s := GridSnapshot{
		ID:             g.ID,
		UUID:           g.GridUUID,
		W:              g.W,
		H:              g.H,
		MaxLeafObjects: g.MaxLeafObjects,
		NumNodes:       g.tree.NumNodes(),
		NumLeafNodes:   g.tree.NumLeafNodes(),
		NumObjects:     g.tree.NumObjects(),
		Depth:          g.tree.Depth(),
	}
	if withNodes {
		s.Nodes = make([]NodeInfo, 0, s.NumNodes)
		g.tree.ForEachNode(func(n *quadtree.Node[uint32]) {
			s.Nodes = append(s.Nodes, NodeInfoFromTree(n))
		})
	}
	return s
}

// NumObjects returns the number of objects in the grid.
func (g *Grid) NumObjects() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	return g.tree.NumObjects()
}

// Subscribe registers a handler receiving the grid's leaf lifecycle
// events and returns its registration id.
func (g *Grid) Subscribe(h LeafEventHandler) uint32 {
	g.handlerMutex.Lock()
	defer g.handlerMutex.Unlock()

	id := g.handlerIDs.New()
	g.handlers[id] = h
	return id
}

// Unsubscribe removes the handler with the given registration id.
func (g *Grid) Unsubscribe(id uint32) {
	g.handlerMutex.Lock()
	defer g.handlerMutex.Unlock()

	delete(g.handlers, id)
	g.handlerIDs.Reuse(id)
}

func (g *Grid) takeEvents() []LeafEvent {
	events := g.pendingEvents
	g.pendingEvents = nil
	return events
}

func (g *Grid) broadcast(events []LeafEvent) {
	if len(events) == 0 {
		return
	}

	g.handlerMutex.RLock()
	defer g.handlerMutex.RUnlock()

	for _, h := range g.handlers {
		for _, e := range events {
			h(e)
		}
	}
}

// GridStore stores the grids served by a quadgrid server.
type GridStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	grids    map[uint32]*Grid
	ids      SequentialIDGenerator
}

func (s *GridStore) init() {
	s.grids = make(map[uint32]*Grid)
}

// NewID returns an id for a new grid.
func (s *GridStore) NewID() uint32 {
	return s.ids.New()
}

// Add registers the given grid.
func (s *GridStore) Add(g *Grid) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.grids[g.ID] = g
	instrumentIncreaseGridGauge()
}

// Remove unregisters the given grid.
func (s *GridStore) Remove(g *Grid) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.grids, g.ID)
	s.ids.Reuse(g.ID)
	instrumentDecreaseGridGauge()
	instrumentGridObjects(-float64(g.NumObjects()))
}

// GetByID returns the grid with the given id.
func (s *GridStore) GetByID(id uint32) (*Grid, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	g, ok := s.grids[id]
	return g, ok
}

// List returns a snapshot of every stored grid, without node details.
func (s *GridStore) List() []GridSnapshot {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	grids := make([]*Grid, 0, len(s.grids))
	for _, g := range s.grids {
		grids = append(grids, g)
	}
	s.mutex.RUnlock()

	snapshots := make([]GridSnapshot, 0, len(grids))
	for _, g := range grids {
		snapshots = append(snapshots, g.Snapshot(false))
	}
	return snapshots
}
