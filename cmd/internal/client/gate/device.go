package gate

import "regexp"

var mobileUA = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini|mobile`)

// IsMobileUserAgent reports whether ua looks like a phone or tablet browser.
func IsMobileUserAgent(ua string) bool {
	if ua == "" {
		return false
	}
	return mobileUA.MatchString(ua)
}

// MobileCheck binds a user agent into an isMobileDevice predicate.
func MobileCheck(ua string) func() bool {
	return func() bool { return IsMobileUserAgent(ua) }
}

// Not negates a predicate.
func Not(pred func() bool) func() bool {
	return func() bool { return !pred() }
}

// OnlyIf wraps fn so that it runs only when pred holds at call time.
func OnlyIf[T any](pred func() bool, fn func(T)) func(T) {
	return func(v T) {
		if pred != nil && pred() {
			fn(v)
		}
	}
}
