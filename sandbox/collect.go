package sandbox

import (
	"bytes"
	"context"
	"io"
)

// TruncatedNotice follows output cut at the collection limit
const TruncatedNotice = "\n[output truncated]"

// CollectedResult is a fully buffered execution
type CollectedResult struct {
	Result
	Output    string
	Truncated bool
}

// Collect runs the request to completion and buffers up to maxBytes of its
// stream. Past the limit the execution is killed and the output ends with
// TruncatedNotice and the exit marker. maxBytes <= 0 means no limit.
func Collect(ctx context.Context, executor Executor, req ExecuteRequest, maxBytes int) (CollectedResult, error) {
	s, err := executor.Execute(ctx, req)
	if err != nil {
		return CollectedResult{}, err
	}
	defer s.Close()

	var buf bytes.Buffer
	var src io.Reader = s
	if maxBytes > 0 {
		src = io.LimitReader(s, int64(maxBytes)+1)
	}
	if _, err := io.Copy(&buf, src); err != nil {
		return CollectedResult{}, err
	}

	truncated := maxBytes > 0 && buf.Len() > maxBytes
	if truncated {
		_ = s.Close()
	}

	res := s.Wait()
	out := CollectedResult{Result: res}
	if truncated {
		buf.Truncate(maxBytes)
		buf.WriteString(TruncatedNotice)
		buf.WriteString(res.Marker())
		out.Truncated = true
	}
	out.Output = buf.String()

	return out, nil
}
