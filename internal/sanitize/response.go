package sanitize

import "strings"

// Response cleans reply text returned by the agent. Script and iframe elements
// are removed together with their bodies, then the remaining tags, javascript:
// and data:text/html URIs and on<word>= handlers. Replies are not truncated.
//
// Apply it to the extracted reply text, never to the raw provider payload.
func Response(raw string) string {
	return strings.TrimSpace(stripMarkup(removeBlocks(raw), responseLiterals))
}
