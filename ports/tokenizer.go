package ports

import "github.com/layer-3/mercuria/core"

// Tokenizer reads the claims of an access credential without verifying it.
// The backend is the only party that validates signatures and expiry.
type Tokenizer interface {
	AccessTokenClaims(token string) (*core.AccessClaims, error)
}
