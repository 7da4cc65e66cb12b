package internal

import "context"

// Resolver turns a logical endpoint call into decoded data
type Resolver interface {
	Resolve(ctx context.Context, endpoint string, params Params) (interface{}, error)
	FetchLink(ctx context.Context, url string) (interface{}, error)
}

// Authenticator owns the login state of a client session
type Authenticator interface {
	Login(ctx context.Context) error
	Authenticated() bool
	Invalidate()
	AuthHeaders() map[string]string
}

// Assembler reassembles a chunked result set
type Assembler interface {
	Assemble(ctx context.Context, manifest interface{}) ([]interface{}, error)
}
