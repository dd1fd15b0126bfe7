package xform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAxisSwapRoundTrip(t *testing.T) {
	t.Parallel()

	pts := [][3]float32{{1, 2, 3}, {-4, 5, -6}}
	up := Transform{From: AxisY, To: AxisZ}
	require.NoError(t, up.ApplyPoints(context.Background(), pts, 2))
	require.Equal(t, [3]float32{1, -3, 2}, pts[0])

	down := Transform{From: AxisZ, To: AxisY}
	require.NoError(t, down.ApplyPoints(context.Background(), pts, 2))
	require.Equal(t, [][3]float32{{1, 2, 3}, {-4, 5, -6}}, pts)
}

func TestScaleAppliesToPointsOnly(t *testing.T) {
	t.Parallel()

	tr := Transform{Scale: 0.01, From: AxisY, To: AxisY}
	pts := [][3]float32{{100, 200, 300}}
	require.NoError(t, tr.ApplyPoints(context.Background(), pts, 1))
	require.InDelta(t, 1.0, pts[0][0], 1e-6)
	require.InDelta(t, 3.0, pts[0][2], 1e-6)

	vecs := [][3]float32{{0, 1, 0}}
	require.NoError(t, tr.ApplyVectors(context.Background(), vecs, 1))
	require.Equal(t, [3]float32{0, 1, 0}, vecs[0])
}

func TestLargeInputSplitsAcrossWorkers(t *testing.T) {
	t.Parallel()

	pts := make([][3]float32, 3*minChunk+17)
	for i := range pts {
		pts[i] = [3]float32{float32(i), 0, 1}
	}
	tr := Transform{Scale: 2, From: AxisY, To: AxisZ}
	require.NoError(t, tr.ApplyPoints(context.Background(), pts, 4))
	for i, p := range pts {
		require.Equal(t, [3]float32{2 * float32(i), -2, 0}, p)
	}
}

func TestApplyFlat(t *testing.T) {
	t.Parallel()

	flat := []float32{1, 2, 3, 4, 5, 6}
	tr := Transform{From: AxisY, To: AxisZ}
	require.NoError(t, tr.ApplyFlat(context.Background(), flat, 0, false))
	require.Equal(t, []float32{1, -3, 2, 4, -6, 5}, flat)
	require.Error(t, tr.ApplyFlat(context.Background(), []float32{1, 2}, 0, true))
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := Transform{Scale: 2}
	require.ErrorIs(t, tr.ApplyPoints(ctx, make([][3]float32, 10), 1), context.Canceled)
}

func TestParseAxis(t *testing.T) {
	t.Parallel()

	a, err := ParseAxis(" Z ")
	require.NoError(t, err)
	require.Equal(t, AxisZ, a)
	require.Equal(t, "z", a.String())
	_, err = ParseAxis("x")
	require.Error(t, err)
	require.True(t, Transform{Scale: 1}.Identity())
}
