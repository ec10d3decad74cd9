package occupancy

import (
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/LdDl/occupancy-go/mot"
	"github.com/LdDl/occupancy-go/thermal"
)

// Config holds tunables of a per-node engine
type Config struct {
	// Threshold multiplier for standard deviation. Required, no default
	KSigma     float64
	Background thermal.BackgroundParams
	// Track correspondence radius in grid cells
	AcceptanceRadius float64
	Matching         mot.MatchingAlgorithm
	Prediction       mot.PredictionMode
	// Nominal seconds between frames for Kalman prediction
	KalmanDt   float64
	Classifier Classifier
}

// Validate checks the configuration
func (cfg Config) Validate() error {
	if cfg.KSigma <= 0 {
		return errors.Wrapf(ErrBadConfig, "k_sigma must be positive, got %f", cfg.KSigma)
	}
	if cfg.AcceptanceRadius <= 0 {
		return errors.Wrapf(ErrBadConfig, "acceptance radius must be positive, got %f", cfg.AcceptanceRadius)
	}
	if cfg.Background.InactiveAlpha <= 0 || cfg.Background.InactiveAlpha > 1 {
		return errors.Wrapf(ErrBadConfig, "inactive alpha must be in (0; 1], got %f", cfg.Background.InactiveAlpha)
	}
	if cfg.Background.ActiveAlpha <= 0 || cfg.Background.ActiveAlpha > 1 {
		return errors.Wrapf(ErrBadConfig, "active alpha must be in (0; 1], got %f", cfg.Background.ActiveAlpha)
	}
	if cfg.Background.ReferenceCells <= 0 || cfg.Background.ReferenceCells > thermal.CellsCount {
		return errors.Wrapf(ErrBadConfig, "reference cells must be in [1; %d], got %d", thermal.CellsCount, cfg.Background.ReferenceCells)
	}
	if cfg.Classifier.MinReadings >= cfg.Classifier.MaxReadings {
		return errors.Wrapf(ErrBadConfig, "min readings %d must be less than max readings %d", cfg.Classifier.MinReadings, cfg.Classifier.MaxReadings)
	}
	return nil
}

// Batch is the result of a finished sequence of frames
type Batch struct {
	Events []Event
	// Every track of the sequence in creation order, all of them finished
	Tracks []*mot.Track
}

// Engine runs background model, segmentation, tracker and classifier for a single node.
// It is not safe for concurrent use: frames must be fed sequentially in timestamp order
type Engine struct {
	nodeID          int
	cfg             Config
	model           thermal.BackgroundModel
	threshold       thermal.Grid
	thresholdReady  bool
	tracker         *mot.Tracker[thermal.Blob]
	lastFrame       time.Time
	logger          *slog.Logger
	calibrationHook func(thermal.BackgroundModel)
}

// EngineOption configures optional parameters of Engine
type EngineOption func(*Engine)

// WithLogger sets logger. Engine is silent by default
func WithLogger(logger *slog.Logger) EngineOption {
	return func(engine *Engine) {
		if logger != nil {
			engine.logger = logger
		}
	}
}

// WithCalibrationHook sets callback receiving every updated background model (e.g. to persist it)
func WithCalibrationHook(hook func(thermal.BackgroundModel)) EngineOption {
	return func(engine *Engine) {
		engine.calibrationHook = hook
	}
}

// WithBackground starts engine from previously learned background (e.g. loaded from storage)
func WithBackground(model thermal.BackgroundModel) EngineOption {
	return func(engine *Engine) {
		engine.model = model
	}
}

// NewEngine creates engine for the node
func NewEngine(nodeID int, cfg Config, options ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine := &Engine{
		nodeID: nodeID,
		cfg:    cfg,
		model:  thermal.NewBackgroundModel(nodeID),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, option := range options {
		option(engine)
	}
	if engine.model.NodeID != nodeID {
		return nil, errors.Wrapf(ErrWrongNode, "engine for node %d got background of node %d", nodeID, engine.model.NodeID)
	}
	engine.tracker = engine.newTracker()
	engine.refreshThreshold()
	return engine, nil
}

func (engine *Engine) newTracker() *mot.Tracker[thermal.Blob] {
	return mot.NewTracker[thermal.Blob](
		engine.cfg.AcceptanceRadius,
		engine.cfg.Matching,
		mot.WithPrediction(engine.cfg.Prediction, engine.cfg.KalmanDt),
	)
}

// NodeID returns node the engine is bound to
func (engine *Engine) NodeID() int {
	return engine.nodeID
}

// Model returns current background model
func (engine *Engine) Model() thermal.BackgroundModel {
	return engine.model
}

// Threshold returns currently held threshold. Second value is false until enough empty-room samples are seen
func (engine *Engine) Threshold() (thermal.Grid, bool) {
	return engine.threshold, engine.thresholdReady
}

// ActiveTracks returns tracks which are still followed
func (engine *Engine) ActiveTracks() []*mot.Track {
	return engine.tracker.ActiveTracks()
}

// ProcessFrame feeds single frame. Calibration frames update the background, data frames are tracked.
// Data frame without threshold returns ErrNoThreshold and is otherwise ignored
func (engine *Engine) ProcessFrame(frame thermal.Frame) (mot.FrameReport, error) {
	if frame.NodeID != engine.nodeID {
		return mot.FrameReport{}, errors.Wrapf(ErrWrongNode, "engine for node %d got frame of node %d", engine.nodeID, frame.NodeID)
	}
	if frame.Timestamp.Before(engine.lastFrame) {
		return mot.FrameReport{}, errors.Wrapf(ErrOutOfOrder, "node %d: previous frame at %s, got %s", engine.nodeID, engine.lastFrame.Format(time.RFC3339Nano), frame.Timestamp.Format(time.RFC3339Nano))
	}
	engine.lastFrame = frame.Timestamp

	if frame.IsCalibration() {
		engine.calibrate(frame)
		return mot.FrameReport{}, nil
	}

	if !engine.thresholdReady {
		engine.logger.Debug("occupancy: frame skipped, no threshold", "node", engine.nodeID, "timestamp", frame.Timestamp, "samples", engine.model.SampleCount)
		return mot.FrameReport{}, errors.Wrapf(ErrNoThreshold, "node %d has %d empty-room samples", engine.nodeID, engine.model.SampleCount)
	}
	blobs := thermal.Segment(frame.Grid, engine.threshold)
	report, err := engine.tracker.MatchObjects(frame.Timestamp, blobs)
	if err != nil {
		return report, errors.Wrapf(err, "Can't match objects on node %d", engine.nodeID)
	}
	if len(report.Spawned) > 0 || len(report.Ended) > 0 {
		engine.logger.Debug("occupancy: tracks changed",
			"node", engine.nodeID,
			"timestamp", frame.Timestamp,
			"blobs", len(blobs),
			"updated", len(report.Updated),
			"spawned", len(report.Spawned),
			"ended", len(report.Ended),
		)
	}
	return report, nil
}

func (engine *Engine) calibrate(frame thermal.Frame) {
	var (
		model thermal.BackgroundModel
		err   error
	)
	switch frame.Kind {
	case thermal.FrameInactiveCalibration:
		model = engine.model.UpdateInactive(frame.Grid, engine.cfg.Background)
	case thermal.FrameActiveCalibration:
		model, err = engine.model.UpdateActive(frame.Grid, engine.cfg.Background)
	}
	if err != nil {
		engine.logger.Warn("occupancy: background update skipped", "node", engine.nodeID, "timestamp", frame.Timestamp, "kind", frame.Kind.String(), "error", err)
		return
	}
	model.UpdatedAt = frame.Timestamp
	engine.model = model
	engine.refreshThreshold()
	if engine.calibrationHook != nil {
		engine.calibrationHook(model)
	}
}

// refreshThreshold derives threshold from the current model. Prior threshold is held when it can't be derived
func (engine *Engine) refreshThreshold() {
	threshold, err := engine.model.Threshold(engine.cfg.KSigma)
	if err != nil {
		if errors.Is(err, thermal.ErrNotEnoughSamples) && engine.model.SampleCount > 0 {
			engine.logger.Debug("occupancy: threshold not ready", "node", engine.nodeID, "samples", engine.model.SampleCount)
		}
		return
	}
	engine.threshold = threshold
	engine.thresholdReady = true
}

// Finish ends every active track, classifies the sequence and starts a new one.
// Background model and held threshold are kept
func (engine *Engine) Finish() Batch {
	engine.tracker.Finish()
	tracks := engine.tracker.Tracks()
	events := engine.cfg.Classifier.Classify(engine.nodeID, tracks)
	tally := Count(events)
	engine.logger.Info("occupancy: sequence finished", "node", engine.nodeID, "tracks", len(tracks), "entering", tally.Entering, "leaving", tally.Leaving)
	engine.tracker = engine.newTracker()
	return Batch{
		Events: events,
		Tracks: tracks,
	}
}

// Run feeds whole ordered sequence and finishes it. Data frames without threshold are skipped
func (engine *Engine) Run(frames []thermal.Frame) (Batch, error) {
	skipped := 0
	for i := range frames {
		_, err := engine.ProcessFrame(frames[i])
		if err != nil {
			if errors.Is(err, ErrNoThreshold) {
				skipped++
				continue
			}
			return Batch{}, err
		}
	}
	if skipped > 0 {
		engine.logger.Warn("occupancy: frames skipped without threshold", "node", engine.nodeID, "skipped", skipped)
	}
	return engine.Finish(), nil
}
