//go:build !linux

package profile

func nameThread(string) {}
