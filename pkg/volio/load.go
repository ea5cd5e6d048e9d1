package volio

import (
	"path/filepath"
	"strings"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// Volume is an input volume together with how it should be interpreted.
type Volume struct {
	// Values holds the samples widened to float64.
	Values *volume.Grid[float64]
	// Binary is set for occupancy inputs (binvox, MET_UCHAR) that still
	// need a distance transform.
	Binary bool
}

// Load reads a .mha or .binvox file by extension.
func Load(path string) (*Volume, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".binvox":
		m, err := LoadBinvox(path)
		if err != nil {
			return nil, err
		}
		return &Volume{Values: volume.Convert[float64](m), Binary: true}, nil
	case ".mha":
		im, err := LoadMetaImage(path)
		if err != nil {
			return nil, err
		}
		g, err := im.Scalar()
		if err != nil {
			return nil, err
		}
		return &Volume{Values: g, Binary: im.ElementType == MetUChar}, nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unsupported volume format %q", filepath.Ext(path))
	}
}

// Mask thresholds Values into a binary grid, non-zero samples set.
func (v *Volume) Mask() *volume.Grid[uint8] {
	m := volume.Like[uint8](v.Values)
	for n, s := range v.Values.Data() {
		if s != 0 {
			m.Data()[n] = 1
		}
	}
	return m
}
