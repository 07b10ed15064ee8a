package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distantorigin/butter-launcher/internal/channel"
	"github.com/distantorigin/butter-launcher/internal/version"
)

func TestRecorder_OrderAndPhases(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(Started())
	rec.Emit(Bytes(PhasePWRDownload, 0, 100, 0))
	rec.Emit(Bytes(PhasePWRDownload, 100, 100, 100))
	rec.Emit(Update(PhasePatching, Indeterminate))
	rec.Emit(Update(PhasePatching, 100))
	rec.Emit(Finished(version.GameVersion{Channel: channel.Release, BuildIndex: 3}))

	events := rec.Events()
	require.Len(t, events, 6)
	assert.Equal(t, KindStarted, events[0].Kind)
	assert.Equal(t, []Phase{PhasePWRDownload, PhasePatching}, rec.Phases())
	assert.Len(t, rec.Phase(PhasePatching), 2)

	terminal := rec.Terminal()
	require.Len(t, terminal, 1)
	require.NotNil(t, terminal[0].Version)
	assert.Equal(t, 3, terminal[0].Version.BuildIndex)
}

func TestRecorder_Concurrent(t *testing.T) {
	rec := &Recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				rec.Emit(Update(PhasePatching, j))
			}
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Events(), 400)
}

func TestEvent_Classification(t *testing.T) {
	assert.True(t, Failed("x").Terminal())
	assert.True(t, Finished(version.GameVersion{}).Terminal())
	assert.True(t, Event{Kind: KindLaunchError}.Terminal())
	assert.False(t, Started().Terminal())
	assert.False(t, Update(PhasePatching, 50).Terminal())

	assert.True(t, Update(PhasePatching, Indeterminate).Boundary())
	assert.True(t, Update(PhasePatching, 100).Boundary())
	assert.True(t, Started().Boundary())
	assert.False(t, Update(PhasePatching, 42).Boundary())
}

func TestTee_SkipsNil(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	s := Tee(a, nil, b)
	s.Emit(Started())
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestOrDiscard(t *testing.T) {
	assert.NotPanics(t, func() { OrDiscard(nil).Emit(Started()) })
}

func TestChanSink_NeverBlocks(t *testing.T) {
	s := NewChanSink(2)

	emitted := []Event{
		Started(),
		Update(PhasePWRDownload, 10),
		Update(PhasePWRDownload, 20),
		Update(PhasePWRDownload, 30),
		Update(PhasePWRDownload, 100),
		Failed("network"),
	}
	for _, e := range emitted {
		s.Emit(e)
	}
	s.Close()

	var got []Event
	for e := range s.Events() {
		got = append(got, e)
	}

	var boundaries []Event
	for _, e := range got {
		if e.Boundary() {
			boundaries = append(boundaries, e)
		}
	}
	assert.Equal(t, []Event{Started(), Update(PhasePWRDownload, 100), Failed("network")}, boundaries)
	assert.Equal(t, int64(len(emitted)), int64(len(got))+s.Dropped())
}

func TestChanSink_KeepsBoundariesWhenFull(t *testing.T) {
	s := NewChanSink(2)

	s.Emit(Started())
	s.Emit(Update(PhasePWRDownload, 0))
	s.Emit(Update(PhasePWRDownload, 100))
	s.Emit(Update(PhasePatching, 0))
	s.Close()

	var got []Event
	for e := range s.Events() {
		got = append(got, e)
	}

	require.Len(t, got, 4)
	assert.Equal(t, KindStarted, got[0].Kind)
	assert.Equal(t, PhasePWRDownload, got[1].Phase)
	assert.Equal(t, 0, got[1].Percent)
	assert.Equal(t, 100, got[2].Percent)
	assert.Equal(t, PhasePatching, got[3].Phase)
	assert.Zero(t, s.Dropped())
}

func TestChanSink_OrderedUnderLoad(t *testing.T) {
	s := NewChanSink(4)

	var got []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range s.Events() {
			got = append(got, e)
		}
	}()

	for i := 0; i <= 100; i++ {
		s.Emit(Update(PhasePatching, i))
	}
	s.Close()
	<-done

	require.NotEmpty(t, got)
	assert.Equal(t, 0, got[0].Percent)
	assert.Equal(t, 100, got[len(got)-1].Percent)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Percent, got[i].Percent)
	}
	assert.Equal(t, int64(101), int64(len(got))+s.Dropped())
}

func TestChanSink_EmitAfterClose(t *testing.T) {
	s := NewChanSink(1)
	s.Close()
	s.Close()
	assert.NotPanics(t, func() { s.Emit(Started()) })
}
