package retry

import "regexp"

type pattern struct {
	class Class
	re    *regexp.Regexp
}

// Terminal patterns are checked before transient ones so a message such as
// "HTTP Error 404 ... timed out" stays terminal.
var terminalPatterns = []pattern{
	{ClassNoSubtitles, regexp.MustCompile(`(?i)no (subtitles|captions)|there are no subtitles`)},
	{ClassUnavailable, regexp.MustCompile(`(?i)video (is )?(unavailable|not available)|private video|video is private|\bprivate\b|\bdeleted\b|\bremoved\b|account .*terminated`)},
	{ClassInvalidInput, regexp.MustCompile(`(?i)invalid url|unsupported url|not a valid url|incomplete youtube id|invalid video id`)},
	{ClassNotFound, regexp.MustCompile(`(?i)http error 404|\b404\b`)},
	{ClassPermission, regexp.MustCompile(`(?i)permission denied|access denied|\bforbidden\b|\b403\b|\beacces\b|\beperm\b|sign in to confirm|members-only`)},
}

var transientPatterns = []pattern{
	{ClassRateLimited, regexp.MustCompile(`(?i)rate.?limit|too many requests|\b429\b`)},
	{ClassTimeout, regexp.MustCompile(`(?i)timed? ?out|etimedout|deadline exceeded`)},
	{ClassNetwork, regexp.MustCompile(`(?i)network|econnreset|econnrefused|econnaborted|connection (reset|refused|aborted)|socket hang up|enotfound|eai_again|getaddrinfo|name resolution|\bdns\b|\b502\b|\b503\b|bad gateway|service unavailable|temporarily unavailable|unable to download webpage`)},
}

// ClassifyMessage maps free-text failure output to a Class. Messages that
// match nothing are ClassUnknown, which is not retried.
func ClassifyMessage(message string) Class {
	if message == "" {
		return ClassUnknown
	}
	for _, p := range terminalPatterns {
		if p.re.MatchString(message) {
			return p.class
		}
	}
	for _, p := range transientPatterns {
		if p.re.MatchString(message) {
			return p.class
		}
	}
	return ClassUnknown
}
