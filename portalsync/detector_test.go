package portalsync

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/portaldiscoverer/discoverer/bounds"
	"github.com/portaldiscoverer/discoverer/common/types"
	"github.com/portaldiscoverer/discoverer/fingerprint"
	"github.com/portaldiscoverer/discoverer/index"
)

func observation(id, name string, lat, lng float64) types.Observation {
	c := types.CoordinateFromDegrees(lat, lng)
	return types.Observation{ID: types.EntityID(id), Name: name, Coordinate: &c}
}

func ref(obs types.Observation) types.Fingerprint {
	return fingerprint.SHA1{}.Compute(obs.ID, *obs.Coordinate, obs.Name)
}

func TestDetectorClassify(t *testing.T) {
	region := bounds.Default()
	inside := observation("a", "Fountain", 45.5, -122.6)
	outside := observation("b", "Monument", 38.9, -77.0)
	moved := inside
	shifted := types.CoordinateFromDegrees(45.5, -122.7)
	moved.Coordinate = &shifted

	for _, tc := range []struct {
		desc   string
		obs    types.Observation
		known  types.Fingerprint
		kind   Kind
		reason Reason
	}{
		{desc: "missing id", obs: types.Observation{Name: "x", Coordinate: inside.Coordinate}, kind: KindDiscarded, reason: MissingField},
		{desc: "missing name", obs: types.Observation{ID: "a", Coordinate: inside.Coordinate}, kind: KindDiscarded, reason: MissingField},
		{desc: "missing coordinate", obs: types.Observation{ID: "a", Name: "x"}, kind: KindDiscarded, reason: MissingField},
		{desc: "out of bounds", obs: outside, kind: KindDiscarded, reason: OutOfBounds},
		{desc: "new", obs: inside, kind: KindNew},
		{desc: "unchanged", obs: inside, known: ref(inside), kind: KindUnchanged},
		{desc: "changed", obs: moved, known: ref(inside), kind: KindChanged},
	} {
		t.Run(tc.desc, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			lookup := NewMockLookup(ctrl)
			if tc.reason == NoReason {
				lookup.EXPECT().Lookup(tc.obs.ID).Return(tc.known, tc.known != "")
			}
			d := Detector{Region: region, Computer: fingerprint.SHA1{}}
			c := d.Classify(tc.obs, lookup)
			require.Equal(t, tc.kind, c.Kind)
			require.Equal(t, tc.reason, c.Reason)
			if tc.reason != NoReason {
				return
			}
			require.Equal(t, ref(tc.obs), c.Record.Fingerprint)
			require.Equal(t, *tc.obs.Coordinate, c.Record.Coordinate)
			if tc.kind == KindChanged {
				require.Equal(t, tc.known, c.Previous)
			} else {
				require.Empty(t, c.Previous)
			}
			require.Equal(t, tc.kind == KindNew || tc.kind == KindChanged, c.Submittable())
		})
	}
}

func TestDetectorBoundsAreInclusive(t *testing.T) {
	region := bounds.NewRegion(types.Coordinate{LatE6: 2_000_000, LngE6: 0}, types.Coordinate{LatE6: 0, LngE6: 2_000_000})
	edge := observation("e", "edge", 2, 2)
	c := Detector{Region: region}.Classify(edge, index.New())
	require.Equal(t, KindNew, c.Kind)
}

func TestKindString(t *testing.T) {
	require.Equal(t, "changed", KindChanged.String())
	require.Equal(t, "unknown", Kind(99).String())
	require.Equal(t, "out-of-bounds", OutOfBounds.String())
}
