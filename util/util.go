package util

import "regexp"

const credentialDisplayLen = 12

var hexPattern = regexp.MustCompile("^[0-9a-fA-F]*$")

// IsHex 是否是十六进制字符串
func IsHex(s string) bool {
	return hexPattern.MatchString(Hex2clean(s))
}

// ShortCredential renders "user:pass" for display, clipping each side.
func ShortCredential(username, password string) string {
	return clip(username) + ":" + clip(password)
}

func clip(s string) string {
	if len(s) <= credentialDisplayLen {
		return s
	}
	return s[:credentialDisplayLen]
}
