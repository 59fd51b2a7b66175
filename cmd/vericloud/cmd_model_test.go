package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vericloud/vericloud/internal/model"
)

func TestModelCheckArtifacts(t *testing.T) {
	dir := t.TempDir()
	classifier := writeFile(t, dir, "classifier.json", testClassifier)
	scaler := writeFile(t, dir, "scaler.json", testScaler)

	out, err := runCLI(t, "model", "check", classifier, scaler)
	require.NoError(t, err)
	assert.Contains(t, out, "kind=logistic version=test width=3")
	assert.Contains(t, out, "kind=standard_scaler version=- width=3")
}

func TestModelCheckInvalidArtifact(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "classifier.json", testClassifier)
	bad := writeFile(t, dir, "bad.json", `{"kind": "logistic", "weights": "many"}`)

	out, err := runCLI(t, "model", "check", good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 artifacts invalid")
	assert.Contains(t, out, "✓ "+good)
	assert.Contains(t, out, "✗ "+bad)
}

func TestModelCheckConfigured(t *testing.T) {
	cfg := writeTestConfig(t, t.TempDir())

	out, err := runCLI(t, "model", "check", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "model loaded, 3 features, P(deceptive|0)=0.500")
}

func TestModelCheckWidthMismatch(t *testing.T) {
	dir := t.TempDir()
	writeTestConfig(t, dir)
	cfg := writeFile(t, dir, "wide.yaml", "scoring:\n  feature_length: 5\nmodel:\n  classifier: "+dir+"/classifier.json\n")

	_, err := runCLI(t, "model", "check", "--config", cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDimension)
}

func TestModelCheckNotConfigured(t *testing.T) {
	cfg := writeFile(t, t.TempDir(), "empty.yaml", "scoring:\n  fps: 4\n")

	_, err := runCLI(t, "model", "check", "--config", cfg)
	require.ErrorIs(t, err, model.ErrLoad)
}
