package fetcher

import (
	"context"

	"github.com/IshaanNene/fetchkit/internal/streampipe"
)

type progressKey struct{}

// WithProgress attaches onProgress to ctx so a streamed download
// (Request.OutputPath set) reports transfer progress through it. A
// caller that doesn't need progress reporting can omit this.
func WithProgress(ctx context.Context, onProgress func(streampipe.ProgressInfo)) context.Context {
	return context.WithValue(ctx, progressKey{}, onProgress)
}

func progressFromContext(ctx context.Context) func(streampipe.ProgressInfo) {
	fn, _ := ctx.Value(progressKey{}).(func(streampipe.ProgressInfo))
	return fn
}
