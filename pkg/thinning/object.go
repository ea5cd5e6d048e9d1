package thinning

import "medialskel/pkg/volume"

// ObjectFromDistance marks the inside of a signed distance field. With
// insideNegative the object is where the distance is below zero, otherwise
// where it is above zero.
func ObjectFromDistance(dist *volume.Grid[float64], insideNegative bool) *volume.Grid[uint8] {
	obj := volume.Like[uint8](dist)
	for n, d := range dist.Data() {
		if (insideNegative && d < 0) || (!insideNegative && d > 0) {
			obj.Data()[n] = 1
		}
	}
	return obj
}

// ObjectFromFlux marks every voxel whose flux lies below threshold.
func ObjectFromFlux(flux *volume.Grid[float64], threshold float64) *volume.Grid[uint8] {
	obj := volume.Like[uint8](flux)
	for n, f := range flux.Data() {
		if f < threshold {
			obj.Data()[n] = 1
		}
	}
	return obj
}
