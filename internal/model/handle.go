package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// LoadFunc produces a classifier and scaler. A Handle calls it until one call
// completes without the caller's context ending first.
type LoadFunc func(ctx context.Context) (Classifier, Scaler, error)

// Handle lazily loads a classifier/scaler pair and shares it between
// sessions. It is passed explicitly rather than held in a package global.
type Handle struct {
	mu         sync.Mutex
	loaded     bool
	load       LoadFunc
	classifier Classifier
	scaler     Scaler
	err        error
}

// NewHandle returns a handle that calls load on first use.
func NewHandle(load LoadFunc) *Handle {
	return &Handle{load: load}
}

// StaticHandle wraps an already constructed pair. A nil scaler becomes Identity.
func StaticHandle(c Classifier, s Scaler) *Handle {
	if s == nil {
		s = Identity{}
	}
	return NewHandle(func(context.Context) (Classifier, Scaler, error) { return c, s, nil })
}

// Get returns the loaded pair. The first call performs the load; later calls
// return the cached result, including a cached error. A load cut short by
// the caller's context is not cached, so the next caller retries it.
func (h *Handle) Get(ctx context.Context) (Classifier, Scaler, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return h.classifier, h.scaler, h.err
	}

	c, s, err := h.load(ctx)
	if err != nil && (ctx.Err() != nil || isContextErr(err)) {
		return nil, nil, err
	}
	if err == nil && c == nil {
		err = fmt.Errorf("%w: no classifier", ErrLoad)
	}
	if err == nil && s == nil {
		s = Identity{}
	}
	h.classifier, h.scaler, h.err, h.loaded = c, s, err, true
	return h.classifier, h.scaler, h.err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Source describes where classifier and scaler artifacts live. Local paths
// are used directly, or as the fallback when a blob download fails.
type Source struct {
	ClassifierPath string
	ScalerPath     string

	Blob           BlobConfig
	ClassifierBlob string
	ScalerBlob     string
}

// FromSource returns a handle that loads the artifacts described by src.
func FromSource(src Source, logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}
	var fetch pairFetcher
	if src.Blob.Enabled() && src.ClassifierBlob != "" {
		fetch = func(ctx context.Context) (string, string, error) {
			return fetchFromBlob(ctx, src, logger)
		}
	}
	return NewHandle(func(ctx context.Context) (Classifier, Scaler, error) {
		return loadSource(ctx, src, fetch, logger)
	})
}

// pairFetcher downloads the classifier and optional scaler artifacts and
// returns their local paths. The scaler path is empty when none was fetched.
type pairFetcher func(ctx context.Context) (classifierPath, scalerPath string, err error)

func loadSource(ctx context.Context, src Source, fetch pairFetcher, logger *slog.Logger) (Classifier, Scaler, error) {
	classifierPath, scalerPath := src.ClassifierPath, src.ScalerPath

	if fetch != nil {
		cp, sp, err := fetch(ctx)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, nil, ctx.Err()
		case err != nil:
			logger.Warn("Failed to fetch model from blob storage, falling back to local files", "error", err)
		default:
			classifierPath = cp
			// Without a scaler blob the local scaler still applies.
			if sp != "" {
				scalerPath = sp
			}
		}
	}

	if classifierPath == "" {
		return nil, nil, fmt.Errorf("%w: no classifier path configured", ErrLoad)
	}
	c, err := LoadClassifier(classifierPath)
	if err != nil {
		return nil, nil, err
	}

	var s Scaler = Identity{}
	if scalerPath != "" {
		s, err = LoadScaler(scalerPath)
		if err != nil {
			return nil, nil, err
		}
	}
	logger.Info("Model loaded", "classifier", classifierPath, "scaler", scalerPath)
	return c, s, nil
}

func fetchFromBlob(ctx context.Context, src Source, logger *slog.Logger) (string, string, error) {
	f, err := NewBlobFetcher(src.Blob, logger)
	if err != nil {
		return "", "", err
	}
	return fetchPair(ctx, f, src.ClassifierBlob, src.ScalerBlob)
}

func fetchPair(ctx context.Context, f *BlobFetcher, classifierBlob, scalerBlob string) (string, string, error) {
	cp, err := f.Fetch(ctx, classifierBlob)
	if err != nil {
		return "", "", err
	}
	var sp string
	if scalerBlob != "" {
		if sp, err = f.Fetch(ctx, scalerBlob); err != nil {
			return "", "", err
		}
	}
	return cp, sp, nil
}
