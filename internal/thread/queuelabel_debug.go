//go:build !production

package thread

const queueLabelsEnabled = true
