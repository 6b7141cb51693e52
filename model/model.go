// Package model trains and runs a handwritten text
// recognizer.
//
// A Model chains a convolutional feature extractor, a
// bidirectional LSTM encoder and a per-timestep
// projection, and it is trained with CTC.
//
// A Model is not safe for concurrent use.
// A single caller, such as an anysgd.SGD loop, must
// serialize calls to it.
package model

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"github.com/unixpickle/anyvec/anyvec32"
	"github.com/unixpickle/anyvec/anyvec64"
	"go.uber.org/zap"

	"github.com/YewRongDe/HTR"
	"github.com/YewRongDe/HTR/anyconv"
	"github.com/YewRongDe/HTR/anyrnn"
	"github.com/YewRongDe/HTR/anysgd"
	"github.com/YewRongDe/HTR/anysnap"
	"github.com/YewRongDe/HTR/config"
	"github.com/YewRongDe/HTR/metrics"
)

// These errors are the ones defined in package htr,
// re-exported so that callers of this package can match
// them with errors.Is without another import.
var (
	ErrEmptyVocab  = htr.ErrEmptyVocab
	ErrNoSnapshot  = htr.ErrNoSnapshot
	ErrConfig      = htr.ErrConfig
	ErrShape       = htr.ErrShape
	ErrUnknownChar = htr.ErrUnknownChar
	ErrNonFinite   = htr.ErrNonFinite
)

// rmspropDecay matches the usual RMSProp decay rate.
const rmspropDecay = 0.9

// Context holds the collaborators of a Model.
type Context struct {
	// Store keeps snapshots.
	// It is required.
	Store anysnap.Store

	// Sink receives a point for every trained batch.
	// If nil, points are dropped.
	Sink metrics.Sink

	// Logger is used for lifecycle events.
	// If nil, nothing is logged.
	Logger *zap.Logger

	// Rand initializes fresh parameters.
	// If nil, a source seeded with the configured seed is
	// used.
	Rand *rand.Rand

	// ParallelConv spreads the convolutions of a batch
	// across CPUs.
	ParallelConv bool

	// Background is passed to the store and the sink.
	// If nil, context.Background() is used.
	Background context.Context
}

// Model is a handwritten text recognizer.
type Model struct {
	Vocab      *htr.Vocab
	Extractor  *anyconv.Extractor
	Encoder    *anyrnn.Bidir
	Projection *htr.FC

	cfg     config.ModelConfig
	ctx     Context
	creator anyvec.Creator

	optimizer *anysgd.RMSProp
	schedule  anysgd.StepRater

	batchesTrained int
	snapID         int
}

// New creates a Model.
//
// If the store holds a snapshot, the newest one is
// restored.
// Otherwise, fresh parameters are initialized, unless
// cfg.MustRestore is set, in which case ErrNoSnapshot is
// returned.
func New(ctx Context, cfg config.ModelConfig, vocab *htr.Vocab) (*Model, error) {
	if vocab == nil || vocab.Len() == 0 {
		return nil, ErrEmptyVocab
	}
	if ctx.Store == nil {
		return nil, errors.Wrap(ErrConfig, "no snapshot store")
	}
	if ctx.Sink == nil {
		ctx.Sink = metrics.Discard{}
	}
	if ctx.Logger == nil {
		ctx.Logger = zap.NewNop()
	}
	if ctx.Background == nil {
		ctx.Background = context.Background()
	}
	if ctx.Rand == nil {
		ctx.Rand = rand.New(rand.NewSource(cfg.Seed))
	}

	latest, err := ctx.Store.Latest(ctx.Background)
	hasSnapshot := err == nil
	if err != nil && !errors.Is(err, anysnap.ErrNotFound) {
		return nil, errors.Wrap(err, "find latest snapshot")
	}
	if cfg.MustRestore && !hasSnapshot {
		return nil, errors.Wrap(ErrNoSnapshot, "model must be restored")
	}

	m := &Model{
		Vocab:    vocab,
		cfg:      cfg,
		ctx:      ctx,
		schedule: anysgd.DefaultSchedule(),
	}
	if cfg.Float64 {
		m.creator = anyvec64.CurrentCreator()
	} else {
		m.creator = anyvec32.CurrentCreator()
	}

	if hasSnapshot {
		ctx.Logger.Info("init with stored values", zap.Int("snapshot", latest))
		if err := m.Restore(latest); err != nil {
			return nil, err
		}
		return m, nil
	}

	ctx.Logger.Info("init with new values")
	if err := m.initFresh(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) initFresh() error {
	r := m.ctx.Rand
	extractor, err := anyconv.NewExtractor(m.creator, r, m.cfg.ImageWidth, m.cfg.ImageHeight,
		m.cfg.StageSpecs())
	if err != nil {
		return err
	}
	extractor.SetParallel(m.ctx.ParallelConv)
	m.Extractor = extractor
	m.Encoder = anyrnn.NewBidir(m.creator, r, extractor.OutputDepth(), m.cfg.Hidden, m.cfg.Layers)
	m.Projection = htr.NewFC(m.creator, r, 2*m.cfg.Hidden, m.Vocab.NumClasses())
	m.optimizer = &anysgd.RMSProp{DecayRate: rmspropDecay}
	m.batchesTrained = 0
	m.snapID = 0
	return nil
}

// Parameters returns every trainable variable.
func (m *Model) Parameters() []*anydiff.Var {
	var res []*anydiff.Var
	res = append(res, m.Extractor.Parameters()...)
	res = append(res, m.Encoder.Parameters()...)
	res = append(res, m.Projection.Parameters()...)
	return res
}

// BatchesTrained returns the number of successful
// training steps.
func (m *Model) BatchesTrained() int {
	return m.batchesTrained
}

// SnapshotID returns the id of the last snapshot saved
// or restored, or 0 if there is none.
func (m *Model) SnapshotID() int {
	return m.snapID
}

// SeqLen returns the number of CTC timesteps per image.
func (m *Model) SeqLen() int {
	return m.Extractor.OutputWidth()
}
