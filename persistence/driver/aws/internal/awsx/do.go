package awsx

import (
	"context"
)

// Do executes an AWS API request.
//
// dec is an optional decorator function that may mutate the input before it
// is sent. It returns options that are applied to the request in addition to
// the given options.
func Do[In, Out, Opt any](
	ctx context.Context,
	fn func(context.Context, *In, ...func(*Opt)) (Out, error),
	dec func(*In) []func(*Opt),
	in *In,
	options ...func(*Opt),
) (Out, error) {
	if dec != nil {
		options = append(options, dec(in)...)
	}

	return fn(ctx, in, options...)
}
