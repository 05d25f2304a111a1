// Package core holds application-wide metadata shared by the broker,
// client and worker binaries.
package core

// VERSION of project.
var VERSION = "undefined" // set during the build process with -ldflags
