package arc

// Options is the bundle of independently toggleable knobs consulted
// during format detection and filter selection. The zero value
// disables every transform; use DefaultOptions for the usual setup.
type Options struct {
	// CryptXOR enables the threshold-XOR cipher transform.
	CryptXOR bool
	// CryptSwap enables the bit-pair swap cipher transform.
	CryptSwap bool
	// CryptZlib enables the header-stripped compressed payload
	// transform.
	CryptZlib bool
	// UnwrapMDF enables unwrapping of tagged zlib payloads.
	UnwrapMDF bool

	// NameEncoding selects how entry names are decoded: "auto",
	// "utf8", or "cp932".
	NameEncoding string
}

// DefaultOptions enables every transform and automatic name decoding.
func DefaultOptions() Options {
	return Options{
		CryptXOR:     true,
		CryptSwap:    true,
		CryptZlib:    true,
		UnwrapMDF:    true,
		NameEncoding: "auto",
	}
}
