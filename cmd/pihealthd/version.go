package main

import "fmt"

const (
	appMajor uint = 0
	appMinor uint = 2
	appPatch uint = 0
)

// version returns the application version as a properly formed string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}
