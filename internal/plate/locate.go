package plate

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// Locate finds every plate-like character cluster in img and returns the
// levelled plate image for each, in discovery order. The caller must Close
// every returned plate. An image with no cluster yields an empty slice, and
// a cluster emptied by deduplication is skipped.
func Locate(img gocv.Mat) ([]*Extracted, error) {
	if img.Empty() {
		return nil, nil
	}

	gray, thresh := Binarize(img)
	gray.Close()
	defer thresh.Close()

	groups := FindGroups(FindCandidates(thresh))

	plates := make([]*Extracted, 0, len(groups))
	for _, g := range groups {
		p, err := Extract(img, g)
		if errors.Is(err, ErrEmptyGroup) {
			continue
		}
		if err != nil {
			for _, done := range plates {
				done.Close()
			}
			return nil, fmt.Errorf("extract plate: %w", err)
		}
		if p.Image.Empty() {
			p.Close()
			continue
		}
		plates = append(plates, p)
	}

	return plates, nil
}
