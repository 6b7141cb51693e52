// Command synth trains a recognizer on rendered words and
// uses it to read images.
package main

import (
	"context"
	"flag"
	"image"
	_ "image/png"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/unixpickle/rip"
	"go.uber.org/zap"

	"github.com/YewRongDe/HTR"
	"github.com/YewRongDe/HTR/anysgd"
	"github.com/YewRongDe/HTR/anysnap"
	"github.com/YewRongDe/HTR/config"
	"github.com/YewRongDe/HTR/logger"
	"github.com/YewRongDe/HTR/metrics"
	"github.com/YewRongDe/HTR/model"
)

func main() {
	var configPath string
	var inferPath string
	var numWords int
	var maxLen int
	flag.StringVar(&configPath, "file", "", "configuration file")
	flag.StringVar(&inferPath, "infer", "", "PNG image to recognize instead of training")
	flag.IntVar(&numWords, "words", 5000, "number of synthetic words")
	flag.IntVar(&maxLen, "maxlen", 8, "maximum synthetic word length")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	log := logger.New(cfg.Log)
	defer log.Sync()

	if inferPath != "" {
		cfg.Model.MustRestore = true
	}
	m, closeAll, err := setup(cfg, log)
	if err != nil {
		log.Fatal("set up model", zap.Error(err))
	}
	defer closeAll()

	if inferPath != "" {
		if err := infer(m, cfg, inferPath, log); err != nil {
			log.Fatal("infer", zap.Error(err))
		}
		return
	}
	if err := train(m, cfg, numWords, maxLen, log); err != nil {
		log.Fatal("train", zap.Error(err))
	}
}

func setup(cfg *config.AppConfig, log *zap.Logger) (*model.Model, func(), error) {
	var closers []func()
	closeAll := func() {
		for _, f := range closers {
			f()
		}
	}

	var store anysnap.Store
	switch cfg.Checkpoint.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&cfg.Checkpoint.Redis.RedisOptions)
		closers = append(closers, func() { client.Close() })
		store = anysnap.NewRedisStore(client, cfg.Checkpoint.Redis.KeyPrefix, cfg.Checkpoint.Keep)
	default:
		dirStore, err := anysnap.NewDirStore(cfg.Checkpoint.Dir, cfg.Checkpoint.Keep)
		if err != nil {
			return nil, closeAll, err
		}
		store = dirStore
	}

	var sinks metrics.Multi
	if cfg.Metrics.Log {
		sinks = append(sinks, &metrics.LogSink{Logger: log})
	}
	if cfg.Metrics.InfluxDB.URL != "" {
		influx, err := metrics.NewInfluxSink(cfg.Metrics.InfluxDB)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, influx.Close)
		sinks = append(sinks, influx)
	}

	vocab, err := htr.NewVocab(cfg.Model.CharList)
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	m, err := model.New(model.Context{
		Store:        store,
		Sink:         sinks,
		Logger:       log,
		ParallelConv: true,
	}, cfg.Model, vocab)
	if err != nil {
		closeAll()
		return nil, func() {}, err
	}
	return m, closeAll, nil
}

func train(m *model.Model, cfg *config.AppConfig, numWords, maxLen int, log *zap.Logger) error {
	r := rand.New(rand.NewSource(cfg.Model.Seed))
	words := randomWords(r, cfg.Model.CharList, numWords, maxLen)
	trainWords, validWords := anysgd.HashSplit(words, 0.9)
	log.Info("generated words", zap.Int("train", trainWords.Len()),
		zap.Int("validation", validWords.Len()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := rip.NewRIP().Chan()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	stepper := &stepper{Model: m, Config: &cfg.Model, Rand: r, Logger: log}
	sgd := &anysgd.SGD{
		Stepper:   stepper,
		Samples:   trainWords,
		BatchSize: cfg.Model.BatchSize,
		Rand:      r,
	}
	var epoch int
	sgd.StatusFunc = func(batch anysgd.SampleList) {
		if e := epochOf(sgd.NumProcessed, trainWords.Len()); e != epoch {
			epoch = e
			log.Info("epoch done", zap.Int("epoch", epoch),
				zap.Int("samples", sgd.NumProcessed),
				zap.Int("batches", m.BatchesTrained()),
				zap.Int("skipped", stepper.Skipped))
		}
	}
	log.Info("press ctrl+c once to stop")
	if err := sgd.Run(ctx); err != nil {
		return err
	}

	id, err := m.Save()
	if err != nil {
		return err
	}
	log.Info("saved model", zap.Int("snapshot", id), zap.Int("batches", m.BatchesTrained()))

	return validate(m, cfg, validWords.(wordList), r, log)
}

// epochOf returns the number of complete passes over a
// training set of the given size.
func epochOf(processed, size int) int {
	if size == 0 {
		return 0
	}
	return processed / size
}

// stepper renders a batch of words and trains on it.
type stepper struct {
	Model  *model.Model
	Config *config.ModelConfig
	Rand   *rand.Rand
	Logger *zap.Logger

	// Skipped counts batches with a non-finite loss.
	Skipped int
}

func (s *stepper) Step(samples anysgd.SampleList) error {
	words := samples.(wordList)
	batch := renderBatch(words, s.Config, s.Rand)
	_, err := s.Model.TrainBatch(batch)
	if errors.Is(err, model.ErrNonFinite) {
		// Usually a word too long for the image.
		s.Skipped++
		s.Logger.Warn("skipped batch", zap.Int("batch", s.Model.BatchesTrained()),
			zap.Strings("words", words), zap.Error(err))
		return nil
	}
	return err
}

func renderBatch(words wordList, cfg *config.ModelConfig, r *rand.Rand) *model.Batch {
	batch := &model.Batch{Texts: words}
	for _, w := range words {
		batch.Images = append(batch.Images, renderWord(w, cfg.ImageWidth, cfg.ImageHeight, r))
	}
	return batch
}

func validate(m *model.Model, cfg *config.AppConfig, words wordList, r *rand.Rand,
	log *zap.Logger) error {
	var correct, charErrors, charTotal int
	batchSize := cfg.Model.BatchSize
	if batchSize == 0 {
		batchSize = len(words)
	}
	for i := 0; i < len(words); i += batchSize {
		end := i + batchSize
		if end > len(words) {
			end = len(words)
		}
		batch := renderBatch(words[i:end], &cfg.Model, r)
		texts, _, err := m.InferBatch(batch, false, false)
		if err != nil {
			return err
		}
		for j, text := range texts {
			if text == batch.Texts[j] {
				correct++
			}
			charErrors += editDistance([]rune(text), []rune(batch.Texts[j]))
			charTotal += len([]rune(batch.Texts[j]))
		}
	}
	if charTotal == 0 {
		return nil
	}
	log.Info("validation",
		zap.Float64("word_accuracy", float64(correct)/float64(len(words))),
		zap.Float64("char_error_rate", float64(charErrors)/float64(charTotal)))
	return nil
}

func infer(m *model.Model, cfg *config.AppConfig, path string, log *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	batch := &model.Batch{
		Images: []*model.Image{fitImage(img, cfg.Model.ImageWidth, cfg.Model.ImageHeight)},
	}
	texts, probs, err := m.InferBatch(batch, true, false)
	if err != nil {
		return err
	}
	log.Info("recognized", zap.String("text", texts[0]), zap.Float64("probability", probs[0]))
	return nil
}

// editDistance computes the Levenshtein distance.
func editDistance(a, b []rune) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		prev := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cur := row[j]
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			row[j] = minInt(minInt(row[j]+1, row[j-1]+1), prev+cost)
			prev = cur
		}
	}
	return row[len(b)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
