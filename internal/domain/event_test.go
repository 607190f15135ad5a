package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalEvent_TruncatedRawPayload(t *testing.T) {
	short := CanonicalEvent{RawPayload: "short"}
	assert.Equal(t, "short", short.TruncatedRawPayload())

	long := CanonicalEvent{RawPayload: strings.Repeat("x", MaxRawPayloadLen+500)}
	assert.Len(t, long.TruncatedRawPayload(), MaxRawPayloadLen)
}

func TestRunLog_TruncatedErrorMessage(t *testing.T) {
	short := RunLog{ErrorMessage: "boom"}
	assert.Equal(t, "boom", short.TruncatedErrorMessage())

	long := RunLog{ErrorMessage: strings.Repeat("e", MaxRunLogErrorLen+100)}
	assert.Len(t, long.TruncatedErrorMessage(), MaxRunLogErrorLen)
}

func TestCluster_AnchorIsFirstMember(t *testing.T) {
	c := &Cluster{Members: []CanonicalEvent{
		{EventUID: "usgs:a"},
		{EventUID: "emsc:b"},
	}}
	assert.Equal(t, "usgs:a", c.Anchor().EventUID)
}

func TestCluster_NumSourcesCountsDistinct(t *testing.T) {
	c := &Cluster{Members: []CanonicalEvent{
		{Source: "usgs"},
		{Source: "emsc"},
		{Source: "usgs"},
	}}
	assert.Equal(t, 2, c.NumSources())
}

func TestCluster_NumSourcesSingleton(t *testing.T) {
	c := &Cluster{Members: []CanonicalEvent{{Source: "usgs"}}}
	assert.Equal(t, 1, c.NumSources())
}
