package track

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
)

// newTrack builds a track with one element per position, frames chained from the origin facing +Z.
func newTrack(name string, positions ...float64) *Track {
	tr := NewTrack(name)
	for _, p := range positions {
		tr.Elements = append(tr.Elements, NewTrackElement(p))
	}
	chain(tr)
	return tr
}

// chain places every element at the end of the previous one, keeping each element's own heading
// relative to the arriving heading.
func chain(tr *Track) {
	for i := 1; i < len(tr.Elements); i++ {
		prev := &tr.Elements[i-1]
		tr.Elements[i].SetFrame(prev.FrameAt(tr.Elements[i].StartingTrackPosition - prev.StartingTrackPosition))
	}
}

func newRegistry(tracks ...*Track) *Registry {
	reg := NewRegistry(DefaultOptions(), nil)
	for i, tr := range tracks {
		reg.Add(i, tr)
	}
	return reg
}

func newAxle(trackIndex int) *Follower {
	f := NewFollower("train", 0)
	f.TrackIndex = trackIndex
	f.TriggerType = TriggerFrontCarFrontAxle
	return f
}

func assertVec(t *testing.T, want, got mgl64.Vec3, delta float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		assert.InDelta(t, want[i], got[i], delta, "component %d: want %v got %v", i, want, got)
	}
}
