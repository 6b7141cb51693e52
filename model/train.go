package model

import (
	"github.com/pkg/errors"
	"github.com/unixpickle/anydiff"
	"github.com/unixpickle/anyvec"
	"go.uber.org/zap"

	"github.com/YewRongDe/HTR"
	"github.com/YewRongDe/HTR/anyctc"
	"github.com/YewRongDe/HTR/anysgd"
	"github.com/YewRongDe/HTR/metrics"
)

// TrainBatch runs one training step and returns the mean
// CTC loss of the batch.
//
// The learning rate is chosen by the number of batches
// trained so far.
// If the loss is not finite, ErrNonFinite is returned and
// the model is left as it was.
func (m *Model) TrainBatch(b *Batch) (float64, error) {
	if err := m.checkImages(b); err != nil {
		return 0, err
	}
	if err := m.checkTexts(b); err != nil {
		return 0, err
	}
	sparse, err := m.Vocab.Sparse(b.Texts)
	if err != nil {
		return 0, err
	}

	step := m.batchesTrained
	rate := m.schedule.Rate(step)

	stats := m.saveRunningStats()
	logits := m.logits(b, htr.Train)
	cost := anyctc.MeanCost(logProbs(logits), sparse.Labels())
	loss := scalar(cost.Output())
	if !isFinite(loss) {
		m.restoreRunningStats(stats)
		return loss, errors.Wrapf(ErrNonFinite, "batch %d: loss %v", step, loss)
	}

	params := m.Parameters()
	grad := anydiff.NewGrad(params...)
	c := m.creator
	cost.Propagate(c.MakeVectorData(c.MakeNumericList([]float64{1})), grad)
	grad = m.optimizer.Transform(grad)
	anysgd.ApplyStep(grad, rate)
	m.batchesTrained++

	point := metrics.Point{Step: step, Loss: loss, Rate: rate}
	if err := m.ctx.Sink.Record(m.ctx.Background, point); err != nil {
		m.ctx.Logger.Warn("record training point", zap.Int("step", step), zap.Error(err))
	}
	return loss, nil
}

// saveRunningStats copies the batch-norm statistics,
// which a Train forward pass updates.
func (m *Model) saveRunningStats() []anyvec.Vector {
	var res []anyvec.Vector
	for _, s := range m.Extractor.Stages {
		res = append(res, s.Norm.RunningMean.Copy(), s.Norm.RunningVar.Copy())
	}
	return res
}

func (m *Model) restoreRunningStats(stats []anyvec.Vector) {
	for i, s := range m.Extractor.Stages {
		s.Norm.RunningMean.Set(stats[2*i])
		s.Norm.RunningVar.Set(stats[2*i+1])
	}
}
