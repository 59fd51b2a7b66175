package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validLogisticYAML = `kind: logistic
version: "1"
weights: [0.5, -0.25, 1.0]
intercept: 0.1
`

const validScalerJSON = `{"kind": "standard_scaler", "mean": [0, 1], "scale": [1, 2]}`

const validBoosterJSON = `{
  "kind": "booster_json",
  "base_score": 0.5,
  "trees": [
    {"nodeid": 0, "split": "f1", "split_condition": 0.5, "yes": 1, "no": 2, "missing": 1,
     "children": [{"nodeid": 1, "leaf": -0.2}, {"nodeid": 2, "leaf": 0.3}]}
  ]
}`

func TestValidateArtifactBytes_Valid(t *testing.T) {
	for name, doc := range map[string]string{
		"logistic": validLogisticYAML,
		"scaler":   validScalerJSON,
		"booster":  validBoosterJSON,
	} {
		t.Run(name, func(t *testing.T) {
			require.Empty(t, ValidateArtifactBytes([]byte(doc)))
		})
	}
}

func TestValidateArtifactBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing kind", `{"weights": [1]}`, "/"},
		{"unknown kind", `{"kind": "svm"}`, "/kind"},
		{"logistic without intercept", `kind: logistic
weights: [1, 2]
`, "/"},
		{"scaler with strings", `{"kind": "standard_scaler", "mean": ["a"], "scale": [1]}`, "/mean/0"},
		{"booster bad split", `{"kind": "booster_json", "trees": [{"nodeid": 0, "split": "x1"}]}`, "/trees/0/split"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateArtifactBytes([]byte(tt.doc))
			require.NotEmpty(t, errs)
			found := false
			for _, e := range errs {
				if strings.HasPrefix(e, tt.want) {
					found = true
				}
			}
			require.True(t, found, "expected an error at %s, got %v", tt.want, errs)
		})
	}
}

func TestValidateArtifactBytes_ParseErrors(t *testing.T) {
	errs := ValidateArtifactBytes([]byte("{not json"))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "JSON parse error")

	errs = ValidateArtifactBytes([]byte("   "))
	require.Len(t, errs, 1)
}

func TestParseDocument_YAMLNormalized(t *testing.T) {
	doc, err := ParseDocument([]byte("kind: logistic\nnested:\n  1: one\n"))
	require.NoError(t, err)
	m, ok := doc.(map[string]any)
	require.True(t, ok)
	nested, ok := m["nested"].(map[string]any)
	require.True(t, ok, "nested maps should be string-keyed, got %T", m["nested"])
	require.Equal(t, "one", nested["1"])
}

func TestValidateFuseRequestBytes(t *testing.T) {
	require.Empty(t, ValidateFuseRequestBytes([]byte(
		`{"text": {"prediction": "Lie", "confidence": 0.8}, "voice": {"prediction": "Truth", "confidence": 60}}`)))

	require.Empty(t, ValidateFuseRequestBytes([]byte(
		`{"text": {"prediction": "Lie", "confidence": 0.8}, "voice": {"prediction": "Truth", "confidence": 0.6},
		  "face": {"prediction": "Truthful", "confidence": 0.9}}`)))

	// A missing modality is left to fusion, which reports an Error verdict.
	require.Empty(t, ValidateFuseRequestBytes([]byte(`{"text": {"prediction": "Lie", "confidence": 0.8}}`)))

	errs := ValidateFuseRequestBytes([]byte(`{"voice": {"prediction": "Truth"}}`))
	require.NotEmpty(t, errs)

	errs = ValidateFuseRequestBytes([]byte(`{"text": {"prediction": "Lie", "confidence": 150}, "voice": {"prediction": "Truth", "confidence": 0.6}}`))
	require.NotEmpty(t, errs)
	require.Contains(t, strings.Join(errs, "\n"), "/text/confidence")

	errs = ValidateFuseRequestBytes([]byte(`{"text": {}, "voice": {}, "audio": 1}`))
	require.NotEmpty(t, errs)

	errs = ValidateFuseRequestBytes([]byte(`nope`))
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "JSON parse error")
}
