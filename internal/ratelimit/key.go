package ratelimit

// KeyForDigest builds a limiter key from a credential's stored digest. The
// limiter never sees raw secret material: only digests enter its state.
func KeyForDigest(digest string) string {
	if digest == "" {
		return ""
	}
	return "k:" + digest
}
