package test_helpers

import "time"

// Retry calls f until it succeeds or count attempts were made, sleeping
// timeout between attempts. The last error is returned.
func Retry(f func() error, count int, timeout time.Duration) error {
	var err error

	for i := 0; ; i++ {
		err = f()
		if err == nil {
			return err
		}

		if i >= (count - 1) {
			break
		}

		time.Sleep(timeout)
	}

	return err
}
