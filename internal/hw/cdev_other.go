//go:build !linux

// GPIO character device 는 linux 전용이다. 다른 플랫폼에서는 패키지가
// 빌드될 수 있도록 에러만 반환한다.

package hw

import "errors"

// OpenCdev always fails outside linux.
func OpenCdev(chip, spiPort string, pins Pins) (Device, error) {
	return nil, errors.New("hw: gpiocdev backend is only available on linux")
}
