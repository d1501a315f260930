// Package ephemeris locates and verifies the staged Swiss Ephemeris data.
//
// The data directory is baked into the container image and is read-only at
// runtime. Load records every regular file with its size and digest so that
// health checks can cheaply confirm the files are still in place.
package ephemeris
