package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowLoginGuide prints the out-of-band authorization steps
func ShowLoginGuide(w io.Writer, authorizeURL string) {
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "🔐 FLICKR AUTHORIZATION")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "1. Open this URL in a browser where you are signed in to Flickr:")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "   %s\n", authorizeURL)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "2. Approve read access for this application.")
	fmt.Fprintln(w, "3. Flickr shows a nine-digit code (e.g. 123-456-789). Paste it below.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  The access token grants read access to your account, including")
	fmt.Fprintln(w, "   private photos. It is stored in the system keyring when available,")
	fmt.Fprintln(w, "   otherwise in an encrypted file.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
}

// NormalizeVerifier strips whitespace the user may paste around the code
func NormalizeVerifier(s string) string {
	return strings.Join(strings.Fields(s), "")
}
