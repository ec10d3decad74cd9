package occupancy

import (
	"log/slog"
	"sort"

	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/mot"
	"github.com/LdDl/occupancy-go/thermal"
)

// Router keeps one Engine per node and dispatches frames by node.
// Nodes share no mutable state. Router itself is not safe for concurrent use
type Router struct {
	cfg     Config
	logger  *slog.Logger
	hook    func(thermal.BackgroundModel)
	engines map[int]*Engine
}

// NewRouter creates router. Engines are created lazily on the first frame of a node
func NewRouter(cfg Config, logger *slog.Logger, calibrationHook func(thermal.BackgroundModel)) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		cfg:     cfg,
		logger:  logger,
		hook:    calibrationHook,
		engines: make(map[int]*Engine),
	}, nil
}

// SetBackground starts (or restarts) node's engine from the given background snapshot
func (router *Router) SetBackground(model thermal.BackgroundModel) error {
	engine, err := NewEngine(model.NodeID, router.cfg,
		WithLogger(router.logger),
		WithCalibrationHook(router.hook),
		WithBackground(model),
	)
	if err != nil {
		return errors.Wrapf(err, "Can't create engine for node %d", model.NodeID)
	}
	router.engines[model.NodeID] = engine
	return nil
}

// Engine returns engine of the node, creating it if needed
func (router *Router) Engine(nodeID int) (*Engine, error) {
	if engine, ok := router.engines[nodeID]; ok {
		return engine, nil
	}
	engine, err := NewEngine(nodeID, router.cfg, WithLogger(router.logger), WithCalibrationHook(router.hook))
	if err != nil {
		return nil, errors.Wrapf(err, "Can't create engine for node %d", nodeID)
	}
	router.engines[nodeID] = engine
	return engine, nil
}

// ProcessFrame passes the frame to its node's engine
func (router *Router) ProcessFrame(frame thermal.Frame) (mot.FrameReport, error) {
	engine, err := router.Engine(frame.NodeID)
	if err != nil {
		return mot.FrameReport{}, err
	}
	return engine.ProcessFrame(frame)
}

// Nodes returns known node identifiers in ascending order
func (router *Router) Nodes() []int {
	nodes := make([]int, 0, len(router.engines))
	for nodeID := range router.engines {
		nodes = append(nodes, nodeID)
	}
	sort.Ints(nodes)
	return nodes
}

// Finish finishes sequences of every node. Events of all nodes are ordered by timestamp, then by node
func (router *Router) Finish() (map[int]Batch, []Event) {
	batches := make(map[int]Batch, len(router.engines))
	events := make([]Event, 0)
	for _, nodeID := range router.Nodes() {
		batch := router.engines[nodeID].Finish()
		batches[nodeID] = batch
		events = append(events, batch.Events...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].NodeID < events[j].NodeID
	})
	return batches, events
}
