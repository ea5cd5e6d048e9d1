// Package volio reads and writes the volume and endpoint files consumed and
// produced by medialskel: MetaImage (.mha) scalar and vector volumes, binvox
// occupancy grids and CSV endpoint lists.
package volio

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// Element types understood by the MetaImage codec.
const (
	MetUChar  = "MET_UCHAR"
	MetShort  = "MET_SHORT"
	MetInt    = "MET_INT"
	MetFloat  = "MET_FLOAT"
	MetDouble = "MET_DOUBLE"
)

var elementSize = map[string]int{MetUChar: 1, MetShort: 2, MetInt: 4, MetFloat: 4, MetDouble: 8}

// Header is the subset of MetaImage header fields medialskel uses.
type Header struct {
	Size        volume.Size
	Spacing     r3.Vec
	Origin      r3.Vec
	ElementType string
	Channels    int
	Compressed  bool
	BigEndian   bool
}

// Image is a decoded MetaImage. Samples are widened to float64 with
// channels interleaved.
type Image struct {
	Header
	Samples []float64
}

// ReadMetaImage decodes a single-file MetaImage (ElementDataFile = LOCAL).
func ReadMetaImage(r io.Reader) (*Image, error) {
	br := bufio.NewReader(r)
	h := Header{Spacing: r3.Vec{X: 1, Y: 1, Z: 1}, Channels: 1}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading MetaImage header")
		}
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if err := h.set(key, value); err != nil {
			return nil, err
		}
		if key == "ElementDataFile" {
			if value != "LOCAL" {
				return nil, errors.New(errors.ErrCodeInvalidFormat, "only LOCAL element data is supported, got %q", value)
			}
			break
		}
	}

	size, ok := elementSize[h.ElementType]
	if !ok {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported element type %q", h.ElementType)
	}
	count := h.Size.Len() * h.Channels
	if count == 0 {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "MetaImage has no samples (DimSize %v)", h.Size)
	}

	var body io.Reader = br
	if h.Compressed {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "opening compressed data")
		}
		defer zr.Close()
		body = zr
	}
	raw := make([]byte, count*size)
	if _, err := io.ReadFull(body, raw); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading %d samples", count)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if h.BigEndian {
		order = binary.BigEndian
	}
	samples := make([]float64, count)
	for i := range samples {
		b := raw[i*size : (i+1)*size]
		switch h.ElementType {
		case MetUChar:
			samples[i] = float64(b[0])
		case MetShort:
			samples[i] = float64(int16(order.Uint16(b)))
		case MetInt:
			samples[i] = float64(int32(order.Uint32(b)))
		case MetFloat:
			samples[i] = float64(math.Float32frombits(order.Uint32(b)))
		case MetDouble:
			samples[i] = math.Float64frombits(order.Uint64(b))
		}
	}
	return &Image{Header: h, Samples: samples}, nil
}

func (h *Header) set(key, value string) error {
	switch key {
	case "NDims":
		if value != "3" {
			return errors.New(errors.ErrCodeInvalidFormat, "only 3-D images are supported, got NDims = %s", value)
		}
	case "DimSize":
		v, err := parseInts(value)
		if err != nil || len(v) != 3 {
			return errors.New(errors.ErrCodeInvalidFormat, "bad DimSize %q", value)
		}
		h.Size = volume.Size{v[0], v[1], v[2]}
	case "ElementSpacing", "ElementSize":
		v, err := parseVec(value)
		if err != nil {
			return err
		}
		h.Spacing = v
	case "Offset", "Origin", "Position":
		v, err := parseVec(value)
		if err != nil {
			return err
		}
		h.Origin = v
	case "ElementType":
		h.ElementType = value
	case "ElementNumberOfChannels":
		n, err := strconv.Atoi(value)
		if err != nil || (n != 1 && n != 3) {
			return errors.New(errors.ErrCodeInvalidFormat, "unsupported channel count %q", value)
		}
		h.Channels = n
	case "CompressedData":
		h.Compressed = strings.EqualFold(value, "true")
	case "BinaryDataByteOrderMSB", "ElementByteOrderMSB":
		h.BigEndian = strings.EqualFold(value, "true")
	}
	return nil
}

// Scalar returns the image as a float64 grid.
func (im *Image) Scalar() (*volume.Grid[float64], error) {
	if im.Channels != 1 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "expected a scalar image, got %d channels", im.Channels)
	}
	g, err := volume.FromSlice(im.Size, im.Samples)
	if err != nil {
		return nil, err
	}
	g.Spacing, g.Origin = im.Spacing, im.Origin
	return g, nil
}

// Mask returns the image as a binary grid, every non-zero sample set to 1.
func (im *Image) Mask() (*volume.Grid[uint8], error) {
	s, err := im.Scalar()
	if err != nil {
		return nil, err
	}
	m := volume.Like[uint8](s)
	for n, v := range s.Data() {
		if v != 0 {
			m.Data()[n] = 1
		}
	}
	return m, nil
}

// Vector returns a three-channel image as a vector grid.
func (im *Image) Vector() (*volume.Grid[r3.Vec], error) {
	if im.Channels != 3 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "expected a 3-channel image, got %d", im.Channels)
	}
	g := volume.New[r3.Vec](im.Size)
	g.Spacing, g.Origin = im.Spacing, im.Origin
	for n := range g.Data() {
		g.Data()[n] = r3.Vec{X: im.Samples[3*n], Y: im.Samples[3*n+1], Z: im.Samples[3*n+2]}
	}
	return g, nil
}

// WriteMetaImage encodes g as a little-endian single-file MetaImage whose
// element type follows T.
func WriteMetaImage[T volume.Scalar](w io.Writer, g *volume.Grid[T], compress bool) error {
	var zero T
	elem := elementType(zero)
	size := elementSize[elem]
	raw := make([]byte, g.Len()*size)
	for n, v := range g.Data() {
		putSample(raw[n*size:], elem, float64(v))
	}
	return writeMeta(w, header(g.Size(), g.Spacing, g.Origin, elem, 1, compress), raw)
}

// WriteVectorMetaImage encodes a vector grid as a 3-channel MET_FLOAT image.
func WriteVectorMetaImage(w io.Writer, g *volume.Grid[r3.Vec], compress bool) error {
	raw := make([]byte, g.Len()*3*4)
	for n, v := range g.Data() {
		putSample(raw[12*n:], MetFloat, v.X)
		putSample(raw[12*n+4:], MetFloat, v.Y)
		putSample(raw[12*n+8:], MetFloat, v.Z)
	}
	return writeMeta(w, header(g.Size(), g.Spacing, g.Origin, MetFloat, 3, compress), raw)
}

func header(size volume.Size, spacing, origin r3.Vec, elem string, channels int, compress bool) Header {
	return Header{Size: size, Spacing: spacing, Origin: origin, ElementType: elem, Channels: channels, Compressed: compress}
}

func writeMeta(w io.Writer, h Header, raw []byte) error {
	if h.Compressed {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "compressing samples")
		}
		if err := zw.Close(); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "compressing samples")
		}
		raw = buf.Bytes()
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ObjectType = Image\n")
	fmt.Fprintf(bw, "NDims = 3\n")
	fmt.Fprintf(bw, "BinaryData = True\n")
	fmt.Fprintf(bw, "BinaryDataByteOrderMSB = False\n")
	fmt.Fprintf(bw, "CompressedData = %s\n", boolWord(h.Compressed))
	if h.Compressed {
		fmt.Fprintf(bw, "CompressedDataSize = %d\n", len(raw))
	}
	fmt.Fprintf(bw, "Offset = %g %g %g\n", h.Origin.X, h.Origin.Y, h.Origin.Z)
	fmt.Fprintf(bw, "ElementSpacing = %g %g %g\n", h.Spacing.X, h.Spacing.Y, h.Spacing.Z)
	fmt.Fprintf(bw, "DimSize = %d %d %d\n", h.Size[0], h.Size[1], h.Size[2])
	if h.Channels > 1 {
		fmt.Fprintf(bw, "ElementNumberOfChannels = %d\n", h.Channels)
	}
	fmt.Fprintf(bw, "ElementType = %s\n", h.ElementType)
	fmt.Fprintf(bw, "ElementDataFile = LOCAL\n")
	if _, err := bw.Write(raw); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing samples")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing MetaImage")
	}
	return nil
}

func elementType(v any) string {
	switch v.(type) {
	case uint8:
		return MetUChar
	case int16:
		return MetShort
	case int32:
		return MetInt
	case float32:
		return MetFloat
	default:
		return MetDouble
	}
}

func putSample(b []byte, elem string, v float64) {
	switch elem {
	case MetUChar:
		b[0] = uint8(v)
	case MetShort:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case MetInt:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case MetFloat:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case MetDouble:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	}
}

func boolWord(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseVec(s string) (r3.Vec, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return r3.Vec{}, errors.New(errors.ErrCodeInvalidFormat, "expected three components, got %q", s)
	}
	var v [3]float64
	for i, f := range fields {
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vec{}, errors.Wrap(errors.ErrCodeInvalidFormat, err, "parsing %q", s)
		}
		v[i] = x
	}
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, nil
}

// LoadMetaImage reads a .mha file.
func LoadMetaImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "opening %s", path)
	}
	defer f.Close()
	im, err := ReadMetaImage(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return im, nil
}

// SaveMetaImage writes g to path, creating parent directories.
func SaveMetaImage[T volume.Scalar](path string, g *volume.Grid[T], compress bool) error {
	return createFile(path, func(w io.Writer) error { return WriteMetaImage(w, g, compress) })
}

// SaveVectorMetaImage writes a vector grid to path.
func SaveVectorMetaImage(path string, g *volume.Grid[r3.Vec], compress bool) error {
	return createFile(path, func(w io.Writer) error { return WriteVectorMetaImage(w, g, compress) })
}

func createFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "creating %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "closing %s", path)
	}
	return nil
}
