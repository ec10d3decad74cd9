package thermal

import (
	"sort"

	"github.com/pkg/errors"
)

// Models keeps one BackgroundModel per node
type Models struct {
	params BackgroundParams
	models map[int]BackgroundModel
}

// NewModels creates empty registry
func NewModels(params BackgroundParams) *Models {
	return &Models{
		params: params,
		models: make(map[int]BackgroundModel),
	}
}

// Params returns smoothing factors used by the registry
func (models *Models) Params() BackgroundParams {
	return models.params
}

// Get returns model of the node. Second value is false when the node has never been calibrated
func (models *Models) Get(nodeID int) (BackgroundModel, bool) {
	model, ok := models.models[nodeID]
	return model, ok
}

// Put stores model (e.g. snapshot loaded from storage), replacing the previous one for the same node
func (models *Models) Put(model BackgroundModel) {
	models.models[model.NodeID] = model
}

// Nodes returns known node identifiers in ascending order
func (models *Models) Nodes() []int {
	nodes := make([]int, 0, len(models.models))
	for nodeID := range models.models {
		nodes = append(nodes, nodeID)
	}
	sort.Ints(nodes)
	return nodes
}

// ApplyCalibration updates model of the frame's node and returns the new value.
// Inactive sample creates model for unknown node. Active sample for unknown node returns ErrNoBackground and changes nothing
func (models *Models) ApplyCalibration(frame Frame) (BackgroundModel, error) {
	model, ok := models.models[frame.NodeID]
	if !ok {
		model = NewBackgroundModel(frame.NodeID)
	}
	switch frame.Kind {
	case FrameInactiveCalibration:
		model = model.UpdateInactive(frame.Grid, models.params)
	case FrameActiveCalibration:
		var err error
		model, err = model.UpdateActive(frame.Grid, models.params)
		if err != nil {
			return model, err
		}
	default:
		return model, errors.Wrapf(ErrNotCalibration, "node %d, kind %s", frame.NodeID, frame.Kind)
	}
	model.UpdatedAt = frame.Timestamp
	models.models[frame.NodeID] = model
	return model, nil
}
