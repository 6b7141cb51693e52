package model

import (
	"math"

	"github.com/pkg/errors"

	"github.com/YewRongDe/HTR"
	"github.com/YewRongDe/HTR/anyctc"
	"github.com/YewRongDe/HTR/config"
)

// InferBatch recognizes the texts of a batch.
//
// If calcProbability is set, it also returns the
// probability of a text for every image, computed from
// the same class scores that were decoded.
// The text is the ground truth from b.Texts when
// probabilityOfGT is set, and the recognized text
// otherwise.
// A ground truth text that no alignment can produce
// yields ErrNonFinite.
//
// Inference uses population statistics, so the result for
// an image does not depend on the rest of the batch.
func (m *Model) InferBatch(b *Batch, calcProbability,
	probabilityOfGT bool) ([]string, []float64, error) {
	if err := m.checkImages(b); err != nil {
		return nil, nil, err
	}
	var gtLabels [][]int
	if calcProbability && probabilityOfGT {
		if err := m.checkTexts(b); err != nil {
			return nil, nil, err
		}
		sparse, err := m.Vocab.Sparse(b.Texts)
		if err != nil {
			return nil, nil, err
		}
		gtLabels = sparse.Labels()
	}

	logits := m.logits(b, htr.Eval)

	var decoded [][]int
	if m.cfg.Decoder == config.DecoderPrefix {
		decoded = anyctc.BestLabels(logProbs(logits), m.cfg.BlankThresh)
	} else {
		decoded = anyctc.GreedyLabels(logits)
	}
	if len(decoded) != len(b.Images) {
		return nil, nil, errors.Errorf("decoded %d texts for %d images",
			len(decoded), len(b.Images))
	}
	texts := make([]string, len(decoded))
	for i, label := range decoded {
		texts[i] = m.Vocab.Decode(label)
	}

	if !calcProbability {
		return texts, nil, nil
	}
	labels := decoded
	if probabilityOfGT {
		labels = gtLabels
	}
	costs := anyctc.ElementCosts(logits.Output(), labels)
	probs := make([]float64, len(costs))
	for i, cost := range costs {
		if !isFinite(cost) {
			return nil, nil, errors.Wrapf(ErrNonFinite, "element %d: loss %v", i, cost)
		}
		probs[i] = math.Exp(-cost)
	}
	return texts, probs, nil
}
