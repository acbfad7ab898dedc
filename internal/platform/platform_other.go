//go:build !linux && !darwin && !windows

package platform

func newPlatform(Options) (Platform, error) {
	return nil, ErrUnsupported
}
