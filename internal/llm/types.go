package llm

// Params holds sampling parameters for completion requests.
type Params struct {
	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	// 0 leaves the server default in place.
	Temperature float32
}

// Option configures a Client.
type Option func(*Client)

// WithParams sets the sampling parameters used for every request.
func WithParams(p Params) Option {
	return func(c *Client) {
		c.params = p
	}
}
