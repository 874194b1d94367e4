package palindrome

// IsSymmetric is the plain O(w) check the rolling detector replaces. It backs
// the sanity checks and serves as the reference in tests.
func IsSymmetric(d []byte) bool {
	for i, j := 0, len(d)-1; i < j; i, j = i+1, j-1 {
		if d[i] != d[j] {
			return false
		}
	}
	return true
}

// NaiveSymmetricAt reports whether the width-wide run centered at index c of
// d is a palindrome, using the same center convention as the Scanner: for odd
// widths c is the middle digit, for even widths c is the first digit of the
// right half.
func NaiveSymmetricAt(d []byte, c, width int) bool {
	start := c - width/2
	if start < 0 || start+width > len(d) {
		return false
	}
	return IsSymmetric(d[start : start+width])
}
