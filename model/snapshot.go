package model

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"
	"github.com/unixpickle/serializer"
	"go.uber.org/zap"

	"github.com/YewRongDe/HTR"
	"github.com/YewRongDe/HTR/anyconv"
	"github.com/YewRongDe/HTR/anyrnn"
	"github.com/YewRongDe/HTR/anysgd"
	"github.com/YewRongDe/HTR/anysnap"
)

func init() {
	var b rawBytes
	serializer.RegisterTypedDeserializer(b.SerializerType(), deserializeRawBytes)
}

// rawBytes embeds opaque data, such as optimizer state,
// in a snapshot.
type rawBytes []byte

func deserializeRawBytes(d []byte) (rawBytes, error) {
	return append(rawBytes{}, d...), nil
}

func (r rawBytes) SerializerType() string {
	return "github.com/YewRongDe/HTR/model.rawBytes"
}

func (r rawBytes) Serialize() ([]byte, error) {
	return r, nil
}

// Save writes a snapshot of the model and returns its id.
//
// The id is greater than every stored snapshot id, so
// saving after restoring an older snapshot never replaces
// a newer one.
// If the write fails, the id is not consumed and the
// previous snapshot stays the latest.
func (m *Model) Save() (int, error) {
	next, err := m.nextSnapshotID()
	if err != nil {
		return 0, errors.Wrap(err, "save model")
	}
	prev := m.snapID
	m.snapID = next
	data, err := m.serialize()
	if err == nil {
		err = m.ctx.Store.Save(m.ctx.Background, m.snapID, data)
	}
	if err != nil {
		m.snapID = prev
		return 0, errors.Wrap(err, "save model")
	}
	m.ctx.Logger.Info("saved snapshot", zap.Int("snapshot", m.snapID),
		zap.Int("batches", m.batchesTrained))
	return m.snapID, nil
}

func (m *Model) nextSnapshotID() (int, error) {
	latest, err := m.ctx.Store.Latest(m.ctx.Background)
	if errors.Is(err, anysnap.ErrNotFound) {
		latest = 0
	} else if err != nil {
		return 0, errors.Wrap(err, "find latest snapshot")
	}
	if m.snapID > latest {
		latest = m.snapID
	}
	return latest + 1, nil
}

// Restore replaces the whole model state with a stored
// snapshot.
// It returns ErrNoSnapshot if the snapshot is missing.
//
// If restoring fails, the model is left as it was.
func (m *Model) Restore(id int) error {
	data, err := m.ctx.Store.Load(m.ctx.Background, id)
	if errors.Is(err, anysnap.ErrNotFound) {
		return errors.Wrapf(ErrNoSnapshot, "snapshot %d", id)
	} else if err != nil {
		return errors.Wrapf(err, "restore snapshot %d", id)
	}
	if err := m.deserialize(data); err != nil {
		return errors.Wrapf(err, "restore snapshot %d", id)
	}
	m.ctx.Logger.Info("restored snapshot", zap.Int("snapshot", m.snapID),
		zap.Int("batches", m.batchesTrained))
	return nil
}

// RestoreLatest restores the newest snapshot.
func (m *Model) RestoreLatest() error {
	id, err := m.ctx.Store.Latest(m.ctx.Background)
	if errors.Is(err, anysnap.ErrNotFound) {
		return errors.Wrap(ErrNoSnapshot, "restore latest")
	} else if err != nil {
		return errors.Wrap(err, "restore latest")
	}
	return m.Restore(id)
}

func (m *Model) serialize() ([]byte, error) {
	moments, err := m.optimizer.MarshalMoments(m.Parameters())
	if err != nil {
		return nil, essentials.AddCtx("serialize optimizer", err)
	}
	return serializer.SerializeAny(
		m.Extractor,
		m.Encoder,
		m.Projection,
		rawBytes(m.Vocab.String()),
		serializer.Int(m.batchesTrained),
		serializer.Int(m.snapID),
		rawBytes(moments),
	)
}

func (m *Model) deserialize(data []byte) error {
	var extractor *anyconv.Extractor
	var encoder *anyrnn.Bidir
	var projection *htr.FC
	var vocab, moments rawBytes
	var batches, snapID serializer.Int
	err := serializer.DeserializeAny(data, &extractor, &encoder, &projection, &vocab,
		&batches, &snapID, &moments)
	if err != nil {
		return essentials.AddCtx("deserialize model", err)
	}

	if string(vocab) != m.Vocab.String() {
		return errors.Wrapf(ErrConfig, "snapshot vocabulary %q differs from %q",
			string(vocab), m.Vocab.String())
	}
	if extractor.InputWidth != m.cfg.ImageWidth || extractor.InputHeight != m.cfg.ImageHeight {
		return errors.Wrapf(ErrConfig, "snapshot expects %dx%d images, not %dx%d",
			extractor.InputWidth, extractor.InputHeight, m.cfg.ImageWidth, m.cfg.ImageHeight)
	}
	if projection.OutCount != m.Vocab.NumClasses() {
		return errors.Wrapf(ErrConfig, "snapshot has %d classes, not %d",
			projection.OutCount, m.Vocab.NumClasses())
	}

	restored := &Model{Extractor: extractor, Encoder: encoder, Projection: projection}
	optimizer := &anysgd.RMSProp{DecayRate: rmspropDecay}
	if err := optimizer.UnmarshalMoments(restored.Parameters(), moments); err != nil {
		return essentials.AddCtx("deserialize optimizer", err)
	}

	extractor.SetParallel(m.ctx.ParallelConv)
	m.creator = projection.Weights.Vector.Creator()
	m.Extractor = extractor
	m.Encoder = encoder
	m.Projection = projection
	m.optimizer = optimizer
	m.batchesTrained = int(batches)
	m.snapID = int(snapID)
	return nil
}
