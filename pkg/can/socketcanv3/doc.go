// Package socketcanv3 is a SocketCAN bus on a raw CAN socket, registered as "socketcanv3".
// It is only available on linux.
package socketcanv3
