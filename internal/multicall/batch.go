package multicall

// chunk is a contiguous slice of requests and its offset in the invocation.
type chunk struct {
	Offset   int
	Requests []Request
}

// toBatches splits requests into consecutive chunks of at most size requests.
func toBatches(requests []Request, size int) []chunk {
	if size <= 0 {
		size = DefaultBatchSize
	}
	chunks := make([]chunk, 0, (len(requests)+size-1)/size)
	for start := 0; start < len(requests); start += size {
		end := start + size
		if end > len(requests) {
			end = len(requests)
		}
		chunks = append(chunks, chunk{Offset: start, Requests: requests[start:end]})
	}
	return chunks
}
