package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagFor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TagNormal, TagFor(0))
	assert.Equal(t, TagNormal, TagFor(DangerThreshold))
	assert.Equal(t, TagDanger, TagFor(DangerThreshold+1))
}

func TestEntryRoundTrip(t *testing.T) {
	t.Parallel()
	r := Reading{Timestamp: 1718000000123, Value: 2345, EventTag: TagDanger, SyncState: SyncOfflinePending}
	s := EncodeEntry(r)
	assert.Equal(t, "2345|PELIGRO_HUMO|1718000000123", s)

	got, err := DecodeEntry(s)
	require.NoError(t, err)
	assert.Equal(t, r.Timestamp, got.Timestamp)
	assert.Equal(t, r.Value, got.Value)
	assert.Equal(t, r.EventTag, got.EventTag)
	assert.Equal(t, SyncOfflineSynced, got.SyncState)
}

func TestDecodeEntryMalformed(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "1|2", "a|NORMAL|1", "1|NORMAL|x", "1|NORMAL|2|3"} {
		_, err := DecodeEntry(s)
		assert.ErrorIs(t, err, ErrMalformedEntry, s)
	}
}

func TestClockStrictlyIncreasing(t *testing.T) {
	t.Parallel()
	fixed := time.UnixMilli(1000)
	c := NewClockAt(func() time.Time { return fixed })
	assert.Equal(t, int64(1000), c.Next())
	assert.Equal(t, int64(1001), c.Next())
	assert.Equal(t, int64(1002), c.Next())

	fixed = time.UnixMilli(5000)
	assert.Equal(t, int64(5000), c.Next())
}

func TestAlertReading(t *testing.T) {
	t.Parallel()
	r := Alert{Kind: AlertNoise, Timestamp: 7}.Reading()
	assert.Equal(t, Reading{Timestamp: 7, EventTag: TagNoiseAlert}, r)
	assert.Equal(t, TagSmokeAlert, Alert{Kind: AlertSmoke}.Reading().EventTag)
}

func TestCommandTag(t *testing.T) {
	t.Parallel()
	assert.Equal(t, TagSystemOn, CommandTag(CmdRelayOn))
	assert.Equal(t, TagSystemOff, CommandTag(CmdAlarmOff))
	assert.Equal(t, "CONTROL_BUZZER", CommandTag("buzzer"))
}

func TestSessionStateActive(t *testing.T) {
	t.Parallel()
	assert.True(t, StateConnecting.Active())
	assert.True(t, StateAuthenticating.Active())
	assert.True(t, StateAuthenticated.Active())
	assert.False(t, StateDisconnected.Active())
	assert.False(t, StateFailed.Active())
}
