package aijson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBlockExtractsEmbeddedObject(t *testing.T) {
	text := "Sure, here is the selection:\n{\"selections\": [{\"index\": 0}]}\nHope this helps."

	var out struct {
		Selections []struct {
			Index int `json:"index"`
		} `json:"selections"`
	}
	require.NoError(t, ParseBlock(text, &out))
	require.Len(t, out.Selections, 1)
	assert.Equal(t, 0, out.Selections[0].Index)
}

func TestParseRepairsMalformedJSON(t *testing.T) {
	// Trailing comma and single quotes, typical model output defects
	raw := "{'queries': [{'text': 'Radwege Innenstadt',},],}"

	var out struct {
		Queries []struct {
			Text string `json:"text"`
		} `json:"queries"`
	}
	require.NoError(t, Parse(raw, &out))
	require.Len(t, out.Queries, 1)
	assert.Equal(t, "Radwege Innenstadt", out.Queries[0].Text)
}

func TestParseBlockFailsWithoutObject(t *testing.T) {
	var out map[string]interface{}
	assert.Error(t, ParseBlock("no json here", &out))
}
