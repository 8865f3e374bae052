// Package socketcan provides the "socketcan" interface on Linux.
// It is a basic wrapper around https://github.com/brutella/can.
// On other systems the package is empty and the interface resolves
// to [can.ErrBackendNotLinked].
package socketcan
