package volio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"medialskel/pkg/errors"
	"medialskel/pkg/volume"
)

// ReadEndpoints parses one "x,y,z" voxel index per row. Blank lines and
// lines starting with '#' are ignored, as is a leading "x,y,z" header row.
func ReadEndpoints(r io.Reader) ([]volume.Index, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var points []volume.Index
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "reading endpoints")
		}
		if row == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "x") {
			continue
		}
		var p volume.Index
		for d, field := range rec {
			v, err := strconv.Atoi(strings.TrimSpace(field))
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "endpoint row %d", row)
			}
			p[d] = v
		}
		points = append(points, p)
	}
	return points, nil
}

// WriteEndpoints writes points as "x,y,z" rows under a header.
func WriteEndpoints(w io.Writer, points []volume.Index) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "y", "z"}); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing endpoints")
	}
	for _, p := range points {
		rec := []string{strconv.Itoa(p[0]), strconv.Itoa(p[1]), strconv.Itoa(p[2])}
		if err := cw.Write(rec); err != nil {
			return errors.Wrap(errors.ErrCodeIO, err, "writing endpoints")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeIO, err, "writing endpoints")
	}
	return nil
}

// CheckEndpoints reports the first point that lies outside size.
func CheckEndpoints(points []volume.Index, size volume.Size) error {
	for _, p := range points {
		if !size.Contains(p) {
			return errors.New(errors.ErrCodeInvalidInput, "endpoint %v outside volume %s", p, size)
		}
	}
	return nil
}

// LoadEndpoints reads an endpoints CSV file.
func LoadEndpoints(path string) ([]volume.Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "opening %s", path)
	}
	defer f.Close()
	points, err := ReadEndpoints(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// SaveEndpoints writes points to path.
func SaveEndpoints(path string, points []volume.Index) error {
	return createFile(path, func(w io.Writer) error { return WriteEndpoints(w, points) })
}
