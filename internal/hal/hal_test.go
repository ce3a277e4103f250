package hal

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qsafp-harness/internal/events"
)

func TestListAndGet(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "nvidia", "openai", "stub", "xai"}, List())

	for _, name := range List() {
		d, ok := Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, d.Name())
	}

	d, ok := Get("")
	require.True(t, ok)
	assert.Equal(t, DefaultVendor, d.Name())

	_, ok = Get("acme")
	assert.False(t, ok)
}

func TestGetReturnsIsolatedDevices(t *testing.T) {
	a, _ := Get("stub")
	b, _ := Get("stub")
	a.Alert(SignalTriggered)
	assert.Equal(t, 1, a.Alerts(SignalTriggered))
	assert.Equal(t, 0, b.Alerts(SignalTriggered))
}

func TestBoundaryCheck(t *testing.T) {
	tests := []struct {
		value, lo, hi int
		expected      bool
	}{
		{5, 0, 8, true},
		{0, 0, 8, true},
		{8, 0, 8, true},
		{9, 0, 8, false},
		{-1, 0, 8, false},
		{3, 5, 1, false},
	}
	d, _ := Get("stub")
	for _, tt := range tests {
		assert.Equal(t, tt.expected, d.BoundaryCheck(tt.value, tt.lo, tt.hi), "%+v", tt)
	}
}

func TestEntropy(t *testing.T) {
	xai, _ := Get("xai")
	buf := []byte{1, 2, 3, 4}
	require.NoError(t, xai.Entropy(buf))
	assert.Equal(t, []byte{0, 0, 0, 0}, buf, "xai stub fills zeros")

	stub, _ := Get("stub")
	a := make([]byte, 16)
	b := make([]byte, 16)
	require.NoError(t, stub.Entropy(a))
	require.NoError(t, stub.Entropy(b))
	assert.False(t, bytes.Equal(a, b))
}

func TestTimestamp(t *testing.T) {
	d, _ := Get("xai")
	now := uint64(time.Now().Unix())
	ts := d.Timestamp()
	assert.InDelta(t, now, ts, 1)
}

func TestBiometricQuorum(t *testing.T) {
	for _, name := range []string{"anthropic", "nvidia", "openai"} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, SupportsBiometric(name))
			d, _ := Get(name)
			ok, err := d.BiometricQuorum(context.Background())
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}

	stub, _ := Get("stub")
	assert.False(t, SupportsBiometric("stub"))
	_, err := stub.BiometricQuorum(context.Background())
	assert.ErrorIs(t, err, ErrUnsupported)

	stub.SetBiometric(func(context.Context) (bool, error) { return false, errors.New("sensor offline") })
	ok, err := stub.BiometricQuorum(context.Background())
	assert.False(t, ok)
	assert.EqualError(t, err, "sensor offline")
}

func TestBiometricQuorumCancelled(t *testing.T) {
	d, _ := Get("openai")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok, err := d.BiometricQuorum(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLifecycleAndHeartbeat(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	d, _ := Get("stub")
	d.SetEventBus(bus)

	require.NoError(t, d.Boot())
	require.NoError(t, d.Boot())
	assert.Equal(t, 1, d.Alerts(SignalBoot), "boot is idempotent")

	d.RuntimeTick(0)
	d.RuntimeTick(1)
	d.Shutdown(2)
	d.Shutdown(2)
	assert.Equal(t, 1, d.Alerts(SignalShutdown))
	assert.Equal(t, 2, d.Alerts(SignalTick))

	var got []events.Event
	for len(ch) > 0 {
		got = append(got, <-ch)
	}
	require.Len(t, got, 3)
	assert.Equal(t, events.EventHeartbeat, got[0].Type)
	assert.Equal(t, uint32(1), got[0].Data.Tick)
	assert.Equal(t, uint32(2), got[1].Data.Tick)
	assert.Equal(t, events.EventShutdown, got[2].Type)
	assert.Equal(t, "completed", got[2].Data.Status)
}

func TestSignal(t *testing.T) {
	hz, ms := SignalBoot.Tone()
	assert.Equal(t, 1000, hz)
	assert.Equal(t, 200, ms)
	hz, _ = SignalShutdown.Tone()
	assert.Equal(t, 400, hz)
	assert.Equal(t, "containment", SignalContainment.String())
	assert.Equal(t, "unknown", Signal(99).String())
}
