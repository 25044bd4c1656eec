//go:build !linux && !(rp2040 || rp2350)

package platform

// Open has no hardware to offer on this target; use NewSim.
func Open(names map[string]string) (*Buses, error) {
	if len(names) == 0 {
		return newBuses(), nil
	}
	return nil, ErrNoPlatform
}

func Available() ([]string, error) { return nil, nil }
