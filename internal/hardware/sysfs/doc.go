// Package sysfs reads the flight sensors and the wake-up diagnostic from the
// Linux sysfs tree.
//
// The barometer and the accelerometer are exposed by their kernel IIO drivers
// (for example bmp280 for the BMP388 and st_accel for the LSM303), so the
// daemon never touches sensor registers directly.
package sysfs
