package curated

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testEntries() []Response {
	return []Response{
		{
			Patterns:     []string{"what is the stemi protocol", "stemi door to balloon protocol"},
			ResponseText: "Activate the cath lab immediately. Door-to-balloon target is under 90 minutes.",
			Intent:       "PROTOCOL",
			Confidence:   0.98,
			Sources:      []string{"Cardiac Protocols.pdf"},
		},
		{
			Patterns:     []string{"pharmacy contact number"},
			ResponseText: "The pharmacy is at extension 4411.",
			Intent:       "CONTACT",
			Confidence:   0.95,
			Sources:      []string{"Directory.pdf"},
		},
	}
}

func TestTableMatch(t *testing.T) {
	table, err := NewTable(testEntries())
	require.NoError(t, err)

	got := table.Match("What is the STEMI protocol?", 0.7)
	require.NotNil(t, got)
	assert.Equal(t, "PROTOCOL", got.Intent)
	assert.Equal(t, 0.98, got.Confidence)
}

func TestTableMatchBelowThreshold(t *testing.T) {
	table, err := NewTable(testEntries())
	require.NoError(t, err)

	assert.Nil(t, table.Match("sepsis lactate screening thresholds", 0.7))
	assert.Nil(t, table.Match("", 0.7))
}

func TestTableMatchTieBreakFirstRegistered(t *testing.T) {
	table, err := NewTable([]Response{
		{Patterns: []string{"dosing chart"}, ResponseText: "first", Confidence: 0.9},
		{Patterns: []string{"dosing chart"}, ResponseText: "second", Confidence: 0.9},
	})
	require.NoError(t, err)

	got := table.Match("dosing chart", 0.7)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.ResponseText)
}

func TestTableMatchNormalizesCaseAndWhitespace(t *testing.T) {
	table, err := NewTable(testEntries())
	require.NoError(t, err)

	got := table.Match("  PHARMACY   Contact NUMBER ", 0.9)
	require.NotNil(t, got)
	assert.Equal(t, "CONTACT", got.Intent)
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name  string
		entry Response
	}{
		{"no patterns", Response{ResponseText: "x", Confidence: 0.5}},
		{"empty response", Response{Patterns: []string{"p"}, ResponseText: "  ", Confidence: 0.5}},
		{"bad confidence", Response{Patterns: []string{"p"}, ResponseText: "x", Confidence: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable([]Response{tt.entry})
			assert.ErrorIs(t, err, ErrInvalidEntry)
		})
	}
}

const tableYAML = `responses:
  - patterns:
      - what is the stemi protocol
    response_text: Activate the cath lab immediately.
    intent: PROTOCOL
    confidence: 0.98
    sources:
      - Cardiac Protocols.pdf
`

func TestParse(t *testing.T) {
	table, err := Parse([]byte(tableYAML))
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	got := table.Match("what is the stemi protocol", 0.7)
	require.NotNil(t, got)
	assert.Equal(t, []string{"Cardiac Protocols.pdf"}, got.Sources)
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte("responses:\n  - response_text: no patterns\n"))
	assert.ErrorIs(t, err, ErrLoadFailed)

	_, err = Parse([]byte(":\tnot yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestProviderReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curated.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tableYAML), 0o600))

	p, err := NewProvider(path, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 1, p.Table().Len())
	before := p.Table()

	updated := tableYAML + `  - patterns:
      - pharmacy contact number
    response_text: Extension 4411.
    intent: CONTACT
    confidence: 0.95
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool {
		return p.Table().Len() == 2
	}, 3*time.Second, 20*time.Millisecond)

	// old snapshot untouched
	assert.Equal(t, 1, before.Len())
}

func TestProviderKeepsSnapshotOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "curated.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tableYAML), 0o600))

	p, err := NewProvider(path, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, os.WriteFile(path, []byte("responses:\n  - response_text: broken\n"), 0o600))

	// reload fails; the good snapshot stays
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, p.Table().Len())
}
