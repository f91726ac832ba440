package motion

import (
	"context"

	"roadlog/internal/gps"
)

// Speed bands separating activity classes, in m/s. The vehicle floor sits
// above a hard bicycle sprint so city traffic does not flap the classifier.
const (
	speedStationaryMax = 0.5
	speedWalkingMax    = 2.5
	speedBicycleMax    = 8.0
)

// ClassifyFix derives an activity sample from a fix's ground speed. Fixes
// without a speed classify as unknown with low confidence; poor accuracy
// discounts confidence since the speed estimate degrades with it.
func ClassifyFix(f gps.Fix) Sample {
	s := Sample{Time: f.Time}
	if f.Speed == nil {
		s.Activity = Unknown
		s.Confidence = 20
		return s
	}

	v := *f.Speed
	switch {
	case v < speedStationaryMax:
		s.Activity = Stationary
		s.Confidence = 90
	case v < speedWalkingMax:
		s.Activity = Walking
		s.Confidence = 75
	case v < speedBicycleMax:
		s.Activity = OnBicycle
		s.Confidence = 60
	default:
		s.Activity = InVehicle
		// Confidence grows with speed: 75 at the floor, 95 from ~30 m/s up.
		conf := 75 + int((v-speedBicycleMax)*0.9)
		if conf > 95 {
			conf = 95
		}
		s.Confidence = conf
	}

	if f.Accuracy > 30 {
		s.Confidence = s.Confidence * 2 / 3
	}
	return s
}

// FeedFromPositions derives one activity sample per fix, for handing to
// Classifier.Start. The returned channel closes when the position stream
// closes or the context ends.
func FeedFromPositions(ctx context.Context, fixes <-chan gps.Fix) <-chan Sample {
	out := make(chan Sample, 16)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case f, ok := <-fixes:
				if !ok {
					return
				}
				select {
				case out <- ClassifyFix(f):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
