package volio

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

func rampGrid() *volume.Grid[float32] {
	g := volume.New[float32](volume.Size{4, 3, 2})
	for n := range g.Data() {
		g.Data()[n] = float32(n)*0.5 - 3
	}
	g.Spacing = r3.Vec{X: 0.5, Y: 1, Z: 2}
	g.Origin = r3.Vec{X: -1, Y: 0, Z: 4}
	return g
}

func TestMetaImageScalar(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		src := rampGrid()
		require.NoError(t, WriteMetaImage(&buf, src, compress))

		im, err := ReadMetaImage(&buf)
		require.NoError(t, err)
		assert.Equal(t, MetFloat, im.ElementType)
		assert.Equal(t, compress, im.Compressed)

		g, err := im.Scalar()
		require.NoError(t, err)
		assert.Equal(t, src.Size(), g.Size())
		assert.Equal(t, src.Spacing, g.Spacing)
		assert.Equal(t, src.Origin, g.Origin)
		for n, v := range src.Data() {
			assert.Equal(t, float64(v), g.Data()[n])
		}
	}
}

func TestMetaImageMask(t *testing.T) {
	src := volume.New[uint8](volume.Size{3, 3, 3})
	src.Set(volume.Index{1, 1, 1}, 1)
	src.Set(volume.Index{2, 0, 1}, 255)

	var buf bytes.Buffer
	require.NoError(t, WriteMetaImage(&buf, src, false))
	assert.Contains(t, buf.String(), "ElementType = MET_UCHAR")

	im, err := ReadMetaImage(&buf)
	require.NoError(t, err)
	m, err := im.Mask()
	require.NoError(t, err)
	assert.Equal(t, 2, volume.Count(m))
	assert.Equal(t, uint8(1), m.At(volume.Index{2, 0, 1}))
}

func TestMetaImageVector(t *testing.T) {
	src := volume.New[r3.Vec](volume.Size{2, 2, 1})
	for n := range src.Data() {
		src.Data()[n] = r3.Vec{X: float64(n), Y: -float64(n), Z: 0.25}
	}
	var buf bytes.Buffer
	require.NoError(t, WriteVectorMetaImage(&buf, src, true))

	im, err := ReadMetaImage(&buf)
	require.NoError(t, err)
	assert.Equal(t, 3, im.Channels)

	_, err = im.Scalar()
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	g, err := im.Vector()
	require.NoError(t, err)
	if diff := cmp.Diff(src.Data(), g.Data()); diff != "" {
		t.Errorf("vector samples mismatch (-want +got):\n%s", diff)
	}
}

func TestMetaImageBigEndianShort(t *testing.T) {
	header := strings.Join([]string{
		"ObjectType = Image",
		"NDims = 3",
		"BinaryDataByteOrderMSB = True",
		"DimSize = 2 1 1",
		"ElementType = MET_SHORT",
		"ElementDataFile = LOCAL",
		"",
	}, "\n")
	data := append([]byte(header), 0xff, 0xfe, 0x01, 0x00)

	im, err := ReadMetaImage(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []float64{-2, 256}, im.Samples)
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, im.Spacing)
}

func TestMetaImageRejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"two dimensions", "NDims = 2\nDimSize = 2 2\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n"},
		{"external data", "NDims = 3\nDimSize = 1 1 1\nElementType = MET_UCHAR\nElementDataFile = data.raw\n"},
		{"unknown type", "NDims = 3\nDimSize = 1 1 1\nElementType = MET_LONG_LONG\nElementDataFile = LOCAL\n"},
		{"truncated", "NDims = 3\nDimSize = 4 1 1\nElementType = MET_UCHAR\nElementDataFile = LOCAL\n\x01"},
		{"no data marker", "NDims = 3\nDimSize = 4 1 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMetaImage(strings.NewReader(tt.header))
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat), "got %v", err)
		})
	}
}

func TestBinvoxRoundTrip(t *testing.T) {
	src := volume.New[uint8](volume.Size{3, 4, 5})
	for _, p := range []volume.Index{{0, 0, 0}, {2, 3, 4}, {1, 2, 0}, {1, 2, 1}, {0, 3, 2}} {
		src.Set(p, 1)
	}
	src.Spacing = r3.Vec{X: 0.5, Y: 0.5, Z: 0.5}
	src.Origin = r3.Vec{X: 1, Y: 2, Z: 3}

	var buf bytes.Buffer
	require.NoError(t, WriteBinvox(&buf, src))
	assert.True(t, strings.HasPrefix(buf.String(), "#binvox 1\ndim 3 5 4\n"))

	g, err := ReadBinvox(&buf)
	require.NoError(t, err)
	assert.Equal(t, src.Size(), g.Size())
	assert.Equal(t, src.Data(), g.Data())
	assert.InDelta(t, 0.5, g.Spacing.X, 1e-9)
	assert.InDelta(t, 1, g.Origin.X, 1e-9)
	assert.InDelta(t, 3, g.Origin.Z, 1e-9)
}

func TestBinvoxLongRuns(t *testing.T) {
	src := volume.New[uint8](volume.Size{10, 10, 10})
	src.Fill(1)

	var buf bytes.Buffer
	require.NoError(t, WriteBinvox(&buf, src))
	data := buf.Bytes()[bytes.Index(buf.Bytes(), []byte("data\n"))+5:]
	assert.Equal(t, []byte{1, 255, 1, 255, 1, 255, 1, 235}, data)

	g, err := ReadBinvox(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1000, volume.Count(g))
}

func TestBinvoxLayout(t *testing.T) {
	raw := "#binvox 1\ndim 2 2 2\ntranslate 0 0 0\nscale 1\ndata\n"
	// Second voxel in file order is y=1.
	g, err := ReadBinvox(strings.NewReader(raw + "\x00\x01\x01\x01\x00\x06"))
	require.NoError(t, err)
	assert.Equal(t, 1, volume.Count(g))
	assert.Equal(t, uint8(1), g.At(volume.Index{0, 1, 0}))

	_, err = ReadBinvox(strings.NewReader(raw + "\x00\x09"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))

	_, err = ReadBinvox(strings.NewReader(raw + "\x00\x08\x00"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))

	_, err = ReadBinvox(strings.NewReader("#voxels\n"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
}

func TestEndpoints(t *testing.T) {
	in := "x,y,z\n# tips\n1, 2, 3\n\n4,5,6\n"
	points, err := ReadEndpoints(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []volume.Index{{1, 2, 3}, {4, 5, 6}}, points)

	var buf bytes.Buffer
	require.NoError(t, WriteEndpoints(&buf, points))
	assert.Equal(t, "x,y,z\n1,2,3\n4,5,6\n", buf.String())

	_, err = ReadEndpoints(strings.NewReader("1,2\n"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
	_, err = ReadEndpoints(strings.NewReader("1,a,3\n"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))

	assert.NoError(t, CheckEndpoints(points, volume.Size{5, 6, 7}))
	err = CheckEndpoints(points, volume.Size{5, 5, 5})
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
}

func TestLoadByExtension(t *testing.T) {
	dir := t.TempDir()

	mask := volume.New[uint8](volume.Size{3, 3, 3})
	mask.Set(volume.Index{1, 1, 1}, 1)
	require.NoError(t, SaveBinvox(filepath.Join(dir, "m.binvox"), mask))
	require.NoError(t, SaveMetaImage(filepath.Join(dir, "sub", "m.mha"), mask, false))
	require.NoError(t, SaveMetaImage(filepath.Join(dir, "d.mha"), rampGrid(), true))

	for _, name := range []string{"m.binvox", "sub/m.mha"} {
		v, err := Load(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.True(t, v.Binary, name)
		assert.Equal(t, 1, volume.Count(v.Mask()), name)
	}

	v, err := Load(filepath.Join(dir, "d.mha"))
	require.NoError(t, err)
	assert.False(t, v.Binary)
	assert.Equal(t, -3.0, v.Values.At(volume.Index{0, 0, 0}))

	_, err = Load(filepath.Join(dir, "x.nii"))
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidFormat))
	_, err = Load(filepath.Join(dir, "missing.mha"))
	assert.True(t, errors.Is(err, errors.ErrCodeIO))

	points := []volume.Index{{0, 1, 2}}
	require.NoError(t, SaveEndpoints(filepath.Join(dir, "ends.csv"), points))
	got, err := LoadEndpoints(filepath.Join(dir, "ends.csv"))
	require.NoError(t, err)
	assert.Equal(t, points, got)
}
