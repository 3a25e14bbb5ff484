//go:build windows

package scanner

func detectDiskType() string { return "unknown" }
