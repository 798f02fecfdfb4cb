package util

import (
	"time"
)

// MustParseDuration 将字符串转换成时段
func MustParseDuration(s string) time.Duration {
	value, err := time.ParseDuration(s)
	if err != nil {
		panic("Can't parse duration `" + s + "`: " + err.Error())
	}
	return value
}

// IsDuration reports whether s parses as a positive duration.
func IsDuration(s string) bool {
	value, err := time.ParseDuration(s)
	return err == nil && value > 0
}
